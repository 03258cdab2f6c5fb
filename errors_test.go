// Copyright 2024-2026 The proxybridge Authors, all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package proxybridge

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"go.uber.org/multierr"
)

func TestConnectivityErrorMessage(t *testing.T) {
	err := &ConnectivityError{
		Attempts: []ProbeResult{
			{URL: "http://primary.example.com/", Err: fmt.Errorf("connection refused")},
			{URL: "https://fallback.example.com/", Err: fmt.Errorf("timeout")},
		},
	}

	msg := err.Error()
	for _, want := range []string{
		"2 URL(s) attempted",
		"http://primary.example.com/: connection refused",
		"https://fallback.example.com/: timeout",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q does not contain %q", msg, want)
		}
	}
}

func TestConnectivityErrorUnwrap(t *testing.T) {
	sentinel := errors.New("sentinel")
	err := &ConnectivityError{
		Attempts: []ProbeResult{
			{URL: "http://a.example.com/", Err: fmt.Errorf("connection refused")},
			{URL: "http://b.example.com/", Err: sentinel},
		},
	}

	errs := multierr.Errors(err.Unwrap())
	if len(errs) != 2 {
		t.Fatalf("expected 2 aggregated errors, got %d", len(errs))
	}
	if !errors.Is(errs[1], sentinel) {
		t.Error("expected the aggregated error to preserve the attempt error")
	}
}

func TestTunnelStartErrorUnwrap(t *testing.T) {
	sentinel := errors.New("address in use")
	err := &TunnelStartError{Err: sentinel}

	if !errors.Is(err, sentinel) {
		t.Error("expected Unwrap to expose the bind error")
	}
	if !strings.Contains(err.Error(), "address in use") {
		t.Errorf("error %q does not mention the cause", err)
	}
}

func TestFormatErrorMessage(t *testing.T) {
	err := &FormatError{Raw: "foo:bar:baz", Reason: "expected host:port or host:port:username:password"}
	if got := err.Error(); !strings.Contains(got, `"foo:bar:baz"`) {
		t.Errorf("error %q does not quote the raw specification", got)
	}
}
