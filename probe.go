// Copyright 2024-2026 The proxybridge Authors, all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package proxybridge

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sessionlabs/proxybridge/dialvia"
	"github.com/sessionlabs/proxybridge/log"
)

// ProbeResult records a single connectivity check attempt.
type ProbeResult struct {
	URL        string
	OK         bool
	HTTPStatus int
	Err        error
}

type ProbeConfig struct {
	// PrimaryURL is checked first, typically the target site's own base URL.
	PrimaryURL string
	// FallbackURLs are checked in order when the primary URL fails.
	// Some proxies selectively block specific domains, a single failing
	// URL must not condemn an otherwise healthy proxy.
	FallbackURLs []string
	// Timeout bounds each candidate attempt.
	Timeout time.Duration
}

func DefaultProbeConfig() *ProbeConfig {
	return &ProbeConfig{
		FallbackURLs: []string{
			"https://www.gstatic.com/generate_204",
			"https://detectportal.firefox.com/success.txt",
		},
		Timeout: 10 * time.Second,
	}
}

func (c *ProbeConfig) Validate() error {
	if c.PrimaryURL == "" {
		return fmt.Errorf("check URL cannot be empty")
	}
	for _, s := range append([]string{c.PrimaryURL}, c.FallbackURLs...) {
		u, err := url.Parse(s)
		if err != nil {
			return fmt.Errorf("invalid check URL %q: %w", s, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("invalid check URL %q: scheme must be http or https", s)
		}
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("check timeout must be positive")
	}
	return nil
}

// candidates returns the primary URL followed by the deduplicated
// fallback URLs, with the primary excluded from the fallback set.
func (c *ProbeConfig) candidates() []string {
	v := make([]string, 0, 1+len(c.FallbackURLs))
	v = append(v, c.PrimaryURL)
	seen := map[string]struct{}{c.PrimaryURL: {}}
	for _, u := range c.FallbackURLs {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		v = append(v, u)
	}
	return v
}

// Prober verifies that an upstream proxy is reachable and able to fetch
// at least one validation URL before a session commits to it.
type Prober struct {
	endpoint *ProxyEndpoint
	rt       http.RoundTripper
	log      log.Logger
	metrics  *probeMetrics
}

func NewProber(endpoint *ProxyEndpoint, r prometheus.Registerer, log log.Logger) (*Prober, error) {
	rt, err := proxyRoundTripper(endpoint)
	if err != nil {
		return nil, err
	}

	return &Prober{
		endpoint: endpoint,
		rt:       rt,
		log:      log,
		metrics:  newProbeMetrics(r, promNamespace),
	}, nil
}

func proxyRoundTripper(endpoint *ProxyEndpoint) (http.RoundTripper, error) {
	d := NewDialer(DefaultDialConfig())

	tr := &http.Transport{
		DialContext:           d.DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		DisableKeepAlives:     true,
	}

	switch endpoint.Scheme {
	case HTTPScheme, HTTPSScheme:
		tr.Proxy = http.ProxyURL(endpoint.URL())
	case SOCKS4Scheme:
		tr.DialContext = dialvia.SOCKS4Proxy(d.DialContext, endpoint.URL()).DialContext
	case SOCKS5Scheme, SOCKS5HScheme:
		tr.DialContext = dialvia.SOCKS5Proxy(d.DialContext, endpoint.URL()).DialContext
	default:
		return nil, &ConfigurationError{Reason: fmt.Sprintf("unsupported proxy scheme %q", endpoint.Scheme)}
	}

	return tr, nil
}

// Probe attempts to fetch the configured validation URLs through the proxy,
// stopping at the first success. A response with any HTTP status counts as
// success, the proxy is alive, only transport-level failures fail a
// candidate. If every candidate fails it returns ConnectivityError
// aggregating each candidate's failure reason.
func (p *Prober) Probe(ctx context.Context, cfg *ProbeConfig) error {
	if err := cfg.Validate(); err != nil {
		return &ConfigurationError{Reason: err.Error()}
	}

	httpc := &http.Client{Transport: p.rt}

	var attempts []ProbeResult
	for _, u := range cfg.candidates() {
		res := p.fetch(ctx, httpc, u, cfg.Timeout)
		p.metrics.attempt(res.OK)

		if res.OK {
			p.log.Infof("proxy %s check passed url=%s status=%d", p.endpoint.Redacted(), res.URL, res.HTTPStatus)
			return nil
		}
		p.log.Debugf("proxy %s check failed url=%s error=%s", p.endpoint.Redacted(), res.URL, res.Err)
		attempts = append(attempts, res)
	}

	return &ConnectivityError{Attempts: attempts}
}

func (p *Prober) fetch(ctx context.Context, httpc *http.Client, u string, timeout time.Duration) ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return ProbeResult{URL: u, Err: err}
	}

	resp, err := httpc.Do(req)
	if err != nil {
		return ProbeResult{URL: u, Err: err}
	}
	resp.Body.Close()

	return ProbeResult{URL: u, OK: true, HTTPStatus: resp.StatusCode}
}
