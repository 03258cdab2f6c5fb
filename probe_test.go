// Copyright 2024-2026 The proxybridge Authors, all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package proxybridge

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sessionlabs/proxybridge/log"
)

// stubHTTPProxy returns an HTTP proxy that serves absolute-form GET requests
// itself: hosts listed in blocked get their connection dropped mid-request,
// everything else gets a 200.
func stubHTTPProxy(t *testing.T, blocked ...string) *httptest.Server {
	t.Helper()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, h := range blocked {
			if r.Host == h {
				conn, _, err := w.(http.Hijacker).Hijack()
				if err != nil {
					t.Errorf("hijack: %s", err)
					return
				}
				conn.Close()
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(ts.Close)

	return ts
}

func proxyEndpointForServer(t *testing.T, scheme Scheme, addr string) *ProxyEndpoint {
	t.Helper()

	e, err := ParseProxyEndpoint(addr, scheme)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestProbeHTTPProxy(t *testing.T) {
	ts := stubHTTPProxy(t)
	e := proxyEndpointForServer(t, HTTPScheme, strings.TrimPrefix(ts.URL, "http://"))

	p, err := NewProber(e, nil, log.NopLogger)
	if err != nil {
		t.Fatal(err)
	}

	cfg := DefaultProbeConfig()
	cfg.PrimaryURL = "http://origin.example.com/"
	if err := p.Probe(context.Background(), cfg); err != nil {
		t.Fatalf("Probe(): %s", err)
	}
}

func TestProbeAnyStatusIsReachable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(ts.Close)

	e := proxyEndpointForServer(t, HTTPScheme, strings.TrimPrefix(ts.URL, "http://"))

	p, err := NewProber(e, nil, log.NopLogger)
	if err != nil {
		t.Fatal(err)
	}

	cfg := DefaultProbeConfig()
	cfg.PrimaryURL = "http://origin.example.com/"
	if err := p.Probe(context.Background(), cfg); err != nil {
		t.Fatalf("a captive-portal style 403 still proves connectivity, got %s", err)
	}
}

func TestProbeFallback(t *testing.T) {
	ts := stubHTTPProxy(t, "blocked.example.com")
	e := proxyEndpointForServer(t, HTTPScheme, strings.TrimPrefix(ts.URL, "http://"))

	p, err := NewProber(e, nil, log.NopLogger)
	if err != nil {
		t.Fatal(err)
	}

	cfg := &ProbeConfig{
		PrimaryURL:   "http://blocked.example.com/",
		FallbackURLs: []string{"http://allowed.example.com/"},
		Timeout:      5 * time.Second,
	}
	if err := p.Probe(context.Background(), cfg); err != nil {
		t.Fatalf("fallback URL should have succeeded, got %s", err)
	}
}

func TestProbeSOCKS5Proxy(t *testing.T) {
	stub := newSOCKSStub(t, "alice", "secret")
	defer stub.close()
	stub.handler = httpNoContentHandler

	e := proxyEndpointForServer(t, SOCKS5Scheme, "socks5://alice:secret@"+stub.addr())

	p, err := NewProber(e, nil, log.NopLogger)
	if err != nil {
		t.Fatal(err)
	}

	cfg := DefaultProbeConfig()
	cfg.PrimaryURL = "http://origin.example.com/"
	if err := p.Probe(context.Background(), cfg); err != nil {
		t.Fatalf("Probe(): %s", err)
	}
	if stub.acceptedConns() == 0 {
		t.Fatal("probe did not go through the SOCKS proxy")
	}
}

func TestProbeAllCandidatesFail(t *testing.T) {
	// A listener that is closed immediately gives us an address that is
	// guaranteed to refuse connections.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()

	e := proxyEndpointForServer(t, HTTPScheme, addr)

	p, err := NewProber(e, nil, log.NopLogger)
	if err != nil {
		t.Fatal(err)
	}

	cfg := &ProbeConfig{
		PrimaryURL:   "http://primary.example.com/",
		FallbackURLs: []string{"http://fallback.example.com/"},
		Timeout:      5 * time.Second,
	}
	err = p.Probe(context.Background(), cfg)
	if err == nil {
		t.Fatal("Probe(): expected error")
	}

	var ce *ConnectivityError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConnectivityError, got %T: %s", err, err)
	}
	if len(ce.Attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(ce.Attempts))
	}
	for _, u := range []string{"http://primary.example.com/", "http://fallback.example.com/"} {
		if !strings.Contains(err.Error(), u) {
			t.Errorf("error %q does not mention %q", err, u)
		}
	}
}

func TestProbeInvalidConfig(t *testing.T) {
	e := proxyEndpointForServer(t, HTTPScheme, "127.0.0.1:8080")

	p, err := NewProber(e, nil, log.NopLogger)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		cfg  *ProbeConfig
	}{
		{
			name: "empty primary URL",
			cfg:  &ProbeConfig{Timeout: time.Second},
		},
		{
			name: "non-HTTP primary URL",
			cfg:  &ProbeConfig{PrimaryURL: "ftp://example.com/", Timeout: time.Second},
		},
		{
			name: "zero timeout",
			cfg:  &ProbeConfig{PrimaryURL: "http://example.com/"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := p.Probe(context.Background(), tc.cfg)

			var ce *ConfigurationError
			if !errors.As(err, &ce) {
				t.Fatalf("expected ConfigurationError, got %v", err)
			}
		})
	}
}

func TestProbeConfigCandidates(t *testing.T) {
	cfg := ProbeConfig{
		PrimaryURL: "http://a.example.com/",
		FallbackURLs: []string{
			"http://b.example.com/",
			"http://a.example.com/",
			"http://b.example.com/",
			"http://c.example.com/",
		},
		Timeout: time.Second,
	}

	want := []string{
		"http://a.example.com/",
		"http://b.example.com/",
		"http://c.example.com/",
	}
	if diff := cmp.Diff(want, cfg.candidates()); diff != "" {
		t.Fatalf("candidates() mismatch (-want +got):\n%s", diff)
	}
}
