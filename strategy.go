// Copyright 2024-2026 The proxybridge Authors, all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package proxybridge

import "fmt"

// Strategy says how the client should be pointed at the upstream proxy.
type Strategy int

const (
	// StrategyDirect hands the endpoint URL to the client unchanged.
	StrategyDirect Strategy = 1 + iota
	// StrategyNativeSOCKS hands the endpoint URL to the client's own
	// SOCKS-capable transport.
	StrategyNativeSOCKS
	// StrategyBridge starts a local bridge tunnel and hands its local
	// HTTP CONNECT address to the client instead.
	StrategyBridge
)

func (s Strategy) String() string {
	switch s {
	case StrategyDirect:
		return "direct"
	case StrategyNativeSOCKS:
		return "native-socks"
	case StrategyBridge:
		return "bridge"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// SelectStrategy decides how to expose the endpoint to a client.
// It is a pure function of the endpoint scheme and the client's SOCKS
// capability, it performs no I/O.
func SelectStrategy(scheme Scheme, nativeSOCKS bool) (Strategy, error) {
	switch {
	case scheme == HTTPScheme || scheme == HTTPSScheme:
		return StrategyDirect, nil
	case scheme.IsSOCKS() && nativeSOCKS:
		return StrategyNativeSOCKS, nil
	case scheme.IsSOCKS():
		return StrategyBridge, nil
	default:
		return 0, &ConfigurationError{Reason: fmt.Sprintf("no proxy strategy for scheme %q", scheme)}
	}
}
