// Copyright 2024-2026 The proxybridge Authors, all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package proxybridge resolves, validates and bridges upstream forward
// proxies for a single browser automation session.
//
// A raw proxy specification is normalized into a ProxyEndpoint, verified
// with a connectivity check, and exposed to the client either directly or,
// when the upstream requires a protocol the client cannot speak such as
// authenticated SOCKS, through a local HTTP CONNECT bridge tunnel.
package proxybridge
