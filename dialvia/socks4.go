// Copyright 2024-2026 The proxybridge Authors, all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package dialvia

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"time"
)

const (
	socks4Version     = 0x04
	socks4CmdConnect  = 0x01
	socks4Granted     = 0x5a
	socks4Rejected    = 0x5b
	socks4NoIdentd    = 0x5c
	socks4IdentdMism  = 0x5d
	socks4ReplyLength = 8
)

type SOCKS4ProxyDialer struct {
	dial     ContextDialerFunc
	proxyURL *url.URL
}

// SOCKS4Proxy returns a dialer that connects via a SOCKS4 proxy.
// Destination hostnames that are not IPv4 literals are sent in the
// SOCKS4A extension form and resolved by the proxy.
func SOCKS4Proxy(dial ContextDialerFunc, proxyURL *url.URL) *SOCKS4ProxyDialer {
	if dial == nil {
		panic("dial is required")
	}
	if proxyURL == nil {
		panic("proxy URL is required")
	}
	if proxyURL.Scheme != "socks4" {
		panic("proxy URL scheme must be socks4")
	}

	return &SOCKS4ProxyDialer{
		dial:     dial,
		proxyURL: proxyURL,
	}
}

func (d *SOCKS4ProxyDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if network != "tcp" && network != "tcp4" {
		return nil, fmt.Errorf("unsupported network: %s", network)
	}

	req, err := socks4ConnectRequest(addr, d.proxyURL.User)
	if err != nil {
		return nil, err
	}

	proxyHost := d.proxyURL.Hostname()
	proxyPort := d.proxyURL.Port()
	if proxyPort == "" {
		proxyPort = "1080"
	}

	conn, err := d.dial(ctx, "tcp", net.JoinHostPort(proxyHost, proxyPort))
	if err != nil {
		return nil, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	// Context cancellation must abort the handshake, an expired deadline
	// alone would leave a canceled dial blocked on the reply read.
	handshakeDone := make(chan struct{})
	defer close(handshakeDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.SetDeadline(time.Unix(1, 0))
		case <-handshakeDone:
		}
	}()

	if _, err := conn.Write(req); err != nil {
		conn.Close()
		return nil, socks4Error(ctx, addr, err)
	}

	var reply [socks4ReplyLength]byte
	if _, err := io.ReadFull(conn, reply[:]); err != nil {
		conn.Close()
		return nil, socks4Error(ctx, addr, err)
	}
	if reply[1] != socks4Granted {
		conn.Close()
		return nil, fmt.Errorf("socks4 connect to %s: %s", addr, socks4ReplyString(reply[1]))
	}

	conn.SetDeadline(time.Time{})

	return conn, nil
}

func socks4Error(ctx context.Context, addr string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	return fmt.Errorf("socks4 connect to %s: %w", addr, err)
}

func socks4ConnectRequest(addr string, user *url.Userinfo) ([]byte, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	p, err := strconv.Atoi(port)
	if err != nil || p < 1 || p > 0xffff {
		return nil, fmt.Errorf("invalid port: %s", port)
	}

	b := make([]byte, 0, 16+len(host))
	b = append(b, socks4Version, socks4CmdConnect)
	b = binary.BigEndian.AppendUint16(b, uint16(p))

	ip4 := net.ParseIP(host).To4()
	if ip4 != nil {
		b = append(b, ip4...)
	} else {
		// SOCKS4A marker address, the hostname follows the user ID.
		b = append(b, 0, 0, 0, 1)
	}
	if user != nil {
		b = append(b, user.Username()...)
	}
	b = append(b, 0)
	if ip4 == nil {
		b = append(b, host...)
		b = append(b, 0)
	}

	return b, nil
}

func socks4ReplyString(code byte) string {
	switch code {
	case socks4Rejected:
		return "request rejected or failed"
	case socks4NoIdentd:
		return "identd is not reachable"
	case socks4IdentdMism:
		return "identd user mismatch"
	default:
		return fmt.Sprintf("unknown reply code %#02x", code)
	}
}
