// Copyright 2024-2026 The proxybridge Authors, all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package proxybridge

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// FormatError is returned when a raw proxy specification cannot be parsed.
// It is fatal at configuration time and never retried.
type FormatError struct {
	Raw    string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid proxy %q: %s", e.Raw, e.Reason)
}

// ConfigurationError is returned when the configuration names an unsupported
// scheme or no viable strategy exists.
// It is fatal before any session resource is allocated.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return e.Reason
}

// ConnectivityError is returned when every connectivity check candidate
// failed. It aggregates each candidate's failure reason, it is the
// user-facing diagnostic for a dead proxy.
type ConnectivityError struct {
	Attempts []ProbeResult
}

func (e *ConnectivityError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "proxy failed connectivity check, %d URL(s) attempted", len(e.Attempts))
	for i := range e.Attempts {
		a := &e.Attempts[i]
		fmt.Fprintf(&b, "\n%s: %s", a.URL, a.Err)
	}
	return b.String()
}

func (e *ConnectivityError) Unwrap() error {
	var merr error
	for i := range e.Attempts {
		merr = multierr.Append(merr, e.Attempts[i].Err)
	}
	return merr
}

// TunnelStartError is returned when the local bridge listener could not be
// bound. No partial resources remain after it is returned.
type TunnelStartError struct {
	Err error
}

func (e *TunnelStartError) Error() string {
	return fmt.Sprintf("start tunnel: %s", e.Err)
}

func (e *TunnelStartError) Unwrap() error {
	return e.Err
}
