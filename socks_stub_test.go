// Copyright 2024-2026 The proxybridge Authors, all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package proxybridge

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
)

// socksStub is a minimal in-process SOCKS5 server. Instead of dialing the
// requested target it hands the connection to handler, by default an echo.
type socksStub struct {
	t        *testing.T
	listener net.Listener
	user     string
	pass     string
	handler  func(conn net.Conn, target string)

	wg sync.WaitGroup

	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	accepted int
}

func newSOCKSStub(t *testing.T, user, pass string) *socksStub {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	s := &socksStub{
		t:        t,
		listener: l,
		user:     user,
		pass:     pass,
		conns:    make(map[net.Conn]struct{}),
	}
	s.handler = func(conn net.Conn, _ string) {
		io.Copy(conn, conn) //nolint:errcheck // echo until EOF
	}

	s.wg.Add(1)
	go s.acceptLoop()

	return s
}

func (s *socksStub) addr() string {
	return s.listener.Addr().String()
}

func (s *socksStub) acceptedConns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

func (s *socksStub) close() {
	s.listener.Close()
	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *socksStub) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.accepted++
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				s.mu.Lock()
				delete(s.conns, conn)
				s.mu.Unlock()
				conn.Close()
			}()
			if err := s.serve(conn); err != nil {
				s.t.Logf("socks stub: %s", err)
			}
		}()
	}
}

func (s *socksStub) serve(conn net.Conn) error {
	br := bufio.NewReader(conn)

	// Method selection.
	hdr := make([]byte, 2)
	if _, err := io.ReadFull(br, hdr); err != nil {
		return err
	}
	if hdr[0] != 5 {
		return fmt.Errorf("unexpected version %d", hdr[0])
	}
	methods := make([]byte, hdr[1])
	if _, err := io.ReadFull(br, methods); err != nil {
		return err
	}

	if s.user != "" {
		if err := s.authenticate(conn, br, methods); err != nil {
			return err
		}
	} else {
		if _, err := conn.Write([]byte{5, 0}); err != nil {
			return err
		}
	}

	target, err := readSOCKSRequest(br)
	if err != nil {
		return err
	}
	if _, err := conn.Write([]byte{5, 0, 0, 1, 0, 0, 0, 0, 0, 0}); err != nil {
		return err
	}

	s.handler(&stubConn{Conn: conn, r: br}, target)
	return nil
}

func (s *socksStub) authenticate(conn net.Conn, br *bufio.Reader, methods []byte) error {
	hasUserPass := false
	for _, m := range methods {
		if m == 2 {
			hasUserPass = true
		}
	}
	if !hasUserPass {
		conn.Write([]byte{5, 0xff})
		return fmt.Errorf("client did not offer username/password auth")
	}
	if _, err := conn.Write([]byte{5, 2}); err != nil {
		return err
	}

	var b [1]byte
	if _, err := io.ReadFull(br, b[:]); err != nil {
		return err
	}
	if b[0] != 1 {
		return fmt.Errorf("unexpected auth version %d", b[0])
	}
	readString := func() (string, error) {
		if _, err := io.ReadFull(br, b[:]); err != nil {
			return "", err
		}
		v := make([]byte, b[0])
		if _, err := io.ReadFull(br, v); err != nil {
			return "", err
		}
		return string(v), nil
	}
	user, err := readString()
	if err != nil {
		return err
	}
	pass, err := readString()
	if err != nil {
		return err
	}

	if user != s.user || pass != s.pass {
		conn.Write([]byte{1, 1})
		return fmt.Errorf("bad credentials %s:%s", user, pass)
	}
	_, err = conn.Write([]byte{1, 0})
	return err
}

func readSOCKSRequest(br *bufio.Reader) (string, error) {
	hdr := make([]byte, 4)
	if _, err := io.ReadFull(br, hdr); err != nil {
		return "", err
	}
	if hdr[0] != 5 || hdr[1] != 1 {
		return "", fmt.Errorf("unexpected request %v", hdr)
	}

	var host string
	switch hdr[3] {
	case 1:
		v := make([]byte, 4)
		if _, err := io.ReadFull(br, v); err != nil {
			return "", err
		}
		host = net.IP(v).String()
	case 3:
		var n [1]byte
		if _, err := io.ReadFull(br, n[:]); err != nil {
			return "", err
		}
		v := make([]byte, n[0])
		if _, err := io.ReadFull(br, v); err != nil {
			return "", err
		}
		host = string(v)
	default:
		return "", fmt.Errorf("unexpected address type %d", hdr[3])
	}

	var port [2]byte
	if _, err := io.ReadFull(br, port[:]); err != nil {
		return "", err
	}

	return net.JoinHostPort(host, strconv.Itoa(int(binary.BigEndian.Uint16(port[:])))), nil
}

// stubConn reads through the handshake buffer before hitting the socket.
type stubConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *stubConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

// httpNoContentHandler replies to a single HTTP request with 204 and closes.
func httpNoContentHandler(conn net.Conn, _ string) {
	br := bufio.NewReader(conn)
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return
		}
		if line == "\r\n" || line == "\n" {
			break
		}
	}
	fmt.Fprintf(conn, "HTTP/1.1 204 No Content\r\nContent-Length: 0\r\nConnection: close\r\n\r\n")
}
