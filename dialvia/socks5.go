// Copyright 2024-2026 The proxybridge Authors, all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package dialvia

import (
	"context"
	"net"
	"net/url"

	"golang.org/x/net/proxy"
)

type SOCKS5ProxyDialer struct {
	dial     ContextDialerFunc
	proxyURL *url.URL
}

// SOCKS5Proxy returns a dialer that connects via a SOCKS5 proxy.
// Both socks5 and socks5h URLs are accepted, the destination hostname is
// always sent to the proxy for resolution.
func SOCKS5Proxy(dial ContextDialerFunc, proxyURL *url.URL) *SOCKS5ProxyDialer {
	if dial == nil {
		panic("dial is required")
	}
	if proxyURL == nil {
		panic("proxy URL is required")
	}
	if proxyURL.Scheme != "socks5" && proxyURL.Scheme != "socks5h" {
		panic("proxy URL scheme must be socks5 or socks5h")
	}

	return &SOCKS5ProxyDialer{
		dial:     dial,
		proxyURL: proxyURL,
	}
}

func (d *SOCKS5ProxyDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	u := d.proxyURL.User
	var auth *proxy.Auth
	if u != nil {
		auth = new(proxy.Auth)
		auth.User = u.Username()
		if p, ok := u.Password(); ok {
			auth.Password = p
		}
	}

	proxyHost := d.proxyURL.Hostname()
	proxyPort := d.proxyURL.Port()
	if proxyPort == "" {
		proxyPort = "1080"
	}
	proxyAddr := net.JoinHostPort(proxyHost, proxyPort)

	sd, err := proxy.SOCKS5("tcp", proxyAddr, auth, d.dial)
	if err != nil {
		return nil, err
	}

	return sd.(proxy.ContextDialer).DialContext(ctx, network, addr)
}
