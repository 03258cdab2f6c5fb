// Copyright 2024-2026 The proxybridge Authors, all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package proxybridge

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sessionlabs/proxybridge/dialvia"
	"github.com/sessionlabs/proxybridge/log"
)

// TunnelState transitions Starting -> Running -> Stopping -> Stopped,
// the transitions are monotonic.
type TunnelState int

const (
	TunnelStarting TunnelState = 1 + iota
	TunnelRunning
	TunnelStopping
	TunnelStopped
)

func (s TunnelState) String() string {
	return [4]string{"starting", "running", "stopping", "stopped"}[s-1]
}

// maxConnectHeaderBytes bounds the CONNECT request line and headers.
const maxConnectHeaderBytes = 16 << 10

type TunnelConfig struct {
	// Addr is the local listen address, the port is OS-assigned by default.
	Addr string
	// Upstream is the SOCKS proxy the tunnel relays to.
	Upstream *ProxyEndpoint
	// DialTimeout bounds the upstream dial and SOCKS handshake per relay.
	DialTimeout time.Duration
	// DrainTimeout bounds how long Stop waits for in-flight relays to
	// finish before force closing their sockets.
	DrainTimeout time.Duration

	PromNamespace string
	PromRegistry  prometheus.Registerer
}

func DefaultTunnelConfig() *TunnelConfig {
	return &TunnelConfig{
		Addr:          "127.0.0.1:0",
		DialTimeout:   30 * time.Second,
		DrainTimeout:  10 * time.Second,
		PromNamespace: promNamespace,
	}
}

func (c *TunnelConfig) Validate() error {
	if c.Upstream == nil {
		return fmt.Errorf("upstream endpoint is required")
	}
	if !c.Upstream.Scheme.IsSOCKS() {
		return fmt.Errorf("unsupported upstream scheme %q, the tunnel bridges to SOCKS proxies only", c.Upstream.Scheme)
	}
	if c.DialTimeout <= 0 {
		return fmt.Errorf("dial timeout must be positive")
	}
	return nil
}

// Tunnel is a local HTTP CONNECT server that relays each tunneled
// connection through an authenticated SOCKS upstream. It serves clients
// that can speak plain CONNECT but not authenticated SOCKS.
//
// Start it with StartTunnel, stop it with Stop. The zero value is not usable.
type Tunnel struct {
	config TunnelConfig
	dial   dialvia.ContextDialerFunc
	log    log.Logger

	metrics *tunnelMetrics

	// dialCtx parents every upstream dial. Canceling it aborts relays
	// stuck in the upstream connect or SOCKS handshake, which closing
	// the client socket cannot interrupt.
	dialCtx    context.Context
	dialCancel context.CancelFunc

	mu       sync.Mutex
	state    TunnelState
	listener net.Listener
	conns    map[net.Conn]struct{}

	// wg tracks the accept loop and every relay.
	wg sync.WaitGroup
}

// StartTunnel binds a local listener and starts the accept loop.
// When it returns without error the listener is accepting connections.
// On bind failure it returns TunnelStartError and leaves no resources behind.
func StartTunnel(cfg *TunnelConfig, logger log.Logger) (*Tunnel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &ConfigurationError{Reason: err.Error()}
	}
	if logger == nil {
		logger = log.NopLogger
	}

	d := NewDialer(&DialConfig{DialTimeout: cfg.DialTimeout, KeepAlive: true})

	var dial dialvia.ContextDialerFunc
	switch cfg.Upstream.Scheme {
	case SOCKS4Scheme:
		dial = dialvia.SOCKS4Proxy(d.DialContext, cfg.Upstream.URL()).DialContext
	default:
		dial = dialvia.SOCKS5Proxy(d.DialContext, cfg.Upstream.URL()).DialContext
	}

	t := &Tunnel{
		config:  *cfg,
		dial:    dial,
		log:     logger,
		metrics: newTunnelMetrics(cfg.PromRegistry, cfg.PromNamespace),
		state:   TunnelStarting,
		conns:   make(map[net.Conn]struct{}),
	}
	t.dialCtx, t.dialCancel = context.WithCancel(context.Background())

	addr := cfg.Addr
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	l, err := net.Listen("tcp", addr)
	if err != nil {
		t.dialCancel()
		return nil, &TunnelStartError{Err: err}
	}
	t.listener = l

	t.mu.Lock()
	t.state = TunnelRunning
	t.mu.Unlock()

	t.wg.Add(1)
	go t.acceptLoop()

	t.log.Infof("TUNNEL server listen address=%s upstream=%s", l.Addr(), cfg.Upstream.Redacted())

	return t, nil
}

// Addr returns the local listen address.
func (t *Tunnel) Addr() string {
	return t.listener.Addr().String()
}

// ProxyURL returns the tunnel address in the form the client consumes,
// an unauthenticated local HTTP proxy URL.
func (t *Tunnel) ProxyURL() *url.URL {
	return &url.URL{Scheme: "http", Host: t.Addr()}
}

func (t *Tunnel) State() TunnelState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Run blocks until the context is canceled, then stops the tunnel.
func (t *Tunnel) Run(ctx context.Context) error {
	<-ctx.Done()
	return t.Stop()
}

// Stop closes the listener, gives in-flight relays DrainTimeout to finish
// naturally and force closes the rest. It is idempotent, calling it again
// is a no-op. After Stop returns no tunnel goroutine remains alive.
func (t *Tunnel) Stop() error {
	t.mu.Lock()
	if t.state >= TunnelStopping {
		t.mu.Unlock()
		return nil
	}
	t.state = TunnelStopping
	t.mu.Unlock()

	t.listener.Close()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(t.config.DrainTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		t.log.Errorf("tunnel drain deadline %s exceeded, force closing %d connection(s)", t.config.DrainTimeout, t.activeConns())
		// Closing client sockets does not unblock relays waiting on the
		// upstream dial or SOCKS handshake, canceling their dial context
		// does.
		t.dialCancel()
		t.closeConns()
		<-done
	}
	t.dialCancel()

	t.mu.Lock()
	t.state = TunnelStopped
	t.mu.Unlock()

	t.log.Infof("TUNNEL server stopped address=%s", t.Addr())

	return nil
}

func (t *Tunnel) acceptLoop() {
	defer t.wg.Done()

	for {
		conn, err := t.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || t.State() != TunnelRunning {
				return
			}
			t.log.Errorf("tunnel accept error=%s", err)
			continue
		}

		if !t.trackConn(conn) {
			conn.Close()
			return
		}
		t.wg.Add(1)
		go t.serveConn(conn)
	}
}

// trackConn registers a client connection so that Stop can force close it.
// It refuses new connections once shutdown has started.
func (t *Tunnel) trackConn(conn net.Conn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != TunnelRunning {
		return false
	}
	t.conns[conn] = struct{}{}
	return true
}

func (t *Tunnel) untrackConn(conn net.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.conns, conn)
}

func (t *Tunnel) activeConns() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

func (t *Tunnel) closeConns() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for conn := range t.conns {
		conn.Close()
	}
}

// serveConn runs one relay. Failures are logged and scoped to this
// connection only, they never affect the accept loop or other relays.
func (t *Tunnel) serveConn(conn net.Conn) {
	defer t.wg.Done()
	defer t.untrackConn(conn)
	defer conn.Close()

	// The limit caps how much a client can feed into header parsing,
	// it is lifted once the CONNECT request is accepted.
	lr := &io.LimitedReader{R: conn, N: maxConnectHeaderBytes}
	br := bufio.NewReaderSize(lr, 4096)
	target, err := readConnectTarget(br)
	if err != nil {
		// Not a CONNECT or malformed request line, close immediately
		// with no upstream resources allocated.
		t.metrics.relayError("bad_request")
		t.log.Debugf("tunnel rejected request from %s error=%s", conn.RemoteAddr(), err)
		return
	}
	lr.N = math.MaxInt64

	ctx, cancel := context.WithTimeout(t.dialCtx, t.config.DialTimeout)
	upstream, err := t.dial(ctx, "tcp", target)
	cancel()
	if err != nil {
		t.metrics.relayError("upstream_connect")
		t.log.Errorf("tunnel upstream connect target=%s error=%s", target, err)
		return
	}

	if _, err := conn.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n")); err != nil {
		t.metrics.relayError("client_write")
		upstream.Close()
		return
	}

	t.metrics.relayOpened()
	defer t.metrics.relayClosed()

	t.bicopy(conn, br, upstream)

	t.log.Debugf("tunnel relay done target=%s client=%s", target, conn.RemoteAddr())
}

// bicopy pumps bytes between the client and upstream legs until either
// direction terminates, then closes both sockets to unblock the other
// direction. Closing the sockets is the sole cancellation primitive.
func (t *Tunnel) bicopy(client net.Conn, clientReader io.Reader, upstream net.Conn) {
	var once sync.Once
	closeBoth := func() {
		client.Close()
		upstream.Close()
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		n, err := io.Copy(upstream, clientReader)
		t.metrics.transferred("tx", n)
		t.logCopyError("client->upstream", err)
		once.Do(closeBoth)
	}()

	n, err := io.Copy(client, upstream)
	t.metrics.transferred("rx", n)
	t.logCopyError("upstream->client", err)
	once.Do(closeBoth)

	wg.Wait()
}

func (t *Tunnel) logCopyError(dir string, err error) {
	if err == nil || errors.Is(err, net.ErrClosed) {
		return
	}
	t.metrics.relayError("copy")
	t.log.Debugf("tunnel copy %s error=%s", dir, err)
}

// readConnectTarget parses the initial request and returns the CONNECT
// target in host:port form.
func readConnectTarget(br *bufio.Reader) (string, error) {
	req, err := http.ReadRequest(br)
	if err != nil {
		return "", fmt.Errorf("read request: %w", err)
	}
	if req.Method != http.MethodConnect {
		return "", fmt.Errorf("method %s not allowed, expected CONNECT", req.Method)
	}
	if _, _, err := net.SplitHostPort(req.Host); err != nil {
		return "", fmt.Errorf("invalid CONNECT target %q: %w", req.Host, err)
	}
	return req.Host, nil
}
