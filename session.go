// Copyright 2024-2026 The proxybridge Authors, all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package proxybridge

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sessionlabs/proxybridge/log"
)

type SessionConfig struct {
	// Proxy is the raw upstream proxy specification,
	// see ParseProxyEndpoint for the accepted forms.
	Proxy string
	// DefaultScheme wraps schemeless proxy specifications.
	DefaultScheme Scheme
	// Check configures the connectivity check run before the session
	// commits to the proxy.
	Check *ProbeConfig
	// SkipCheck proceeds without the connectivity check. This is an
	// explicit opt-out, a failing check is fatal by default.
	SkipCheck bool
	// NativeSOCKS declares that the client can authenticate against a
	// SOCKS upstream natively, making the bridge tunnel unnecessary.
	// It is computed once at startup, there is no runtime detection.
	NativeSOCKS bool
	// Tunnel configures the local bridge tunnel, its Upstream field is
	// filled in from the resolved endpoint.
	Tunnel *TunnelConfig

	PromRegistry prometheus.Registerer
}

func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		DefaultScheme: HTTPScheme,
		Check:         DefaultProbeConfig(),
		Tunnel:        DefaultTunnelConfig(),
	}
}

func (c *SessionConfig) Validate() error {
	if c.Proxy == "" {
		return fmt.Errorf("proxy specification cannot be empty")
	}
	if !c.DefaultScheme.isValid() {
		return fmt.Errorf("unsupported default proxy scheme %q, supported schemes are: %s", c.DefaultScheme, schemesString())
	}
	if !c.SkipCheck {
		if c.Check == nil {
			return fmt.Errorf("check configuration is required")
		}
		if err := c.Check.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Session resolves an upstream proxy for one client session and owns the
// bridge tunnel when one is needed. Create it immediately before the
// client session starts and Close it unconditionally when the session
// ends, every outcome routes through the same teardown path.
type Session struct {
	endpoint *ProxyEndpoint
	strategy Strategy
	tunnel   *Tunnel
	log      log.Logger

	closeOnce sync.Once
}

// NewSession normalizes and validates the configured proxy, verifies
// connectivity, picks a strategy and, if bridging is required, starts the
// local tunnel. Any error leaves the system in its pre-session state.
func NewSession(ctx context.Context, cfg *SessionConfig, logger log.Logger) (*Session, error) {
	if logger == nil {
		logger = log.NopLogger
	}
	if err := cfg.Validate(); err != nil {
		return nil, &ConfigurationError{Reason: err.Error()}
	}

	endpoint, err := ParseProxyEndpoint(cfg.Proxy, cfg.DefaultScheme)
	if err != nil {
		logger.Errorf("proxy normalization failed error=%s", err)
		return nil, err
	}
	logger.Infof("using proxy %s", endpoint.Redacted())

	if cfg.SkipCheck {
		logger.Infof("proxy connectivity check skipped")
	} else {
		p, err := NewProber(endpoint, cfg.PromRegistry, logger)
		if err != nil {
			return nil, err
		}
		if err := p.Probe(ctx, cfg.Check); err != nil {
			return nil, err
		}
	}

	strategy, err := SelectStrategy(endpoint.Scheme, cfg.NativeSOCKS)
	if err != nil {
		return nil, err
	}

	s := &Session{
		endpoint: endpoint,
		strategy: strategy,
		log:      logger,
	}

	if strategy == StrategyBridge {
		tcfg := cfg.Tunnel
		if tcfg == nil {
			tcfg = DefaultTunnelConfig()
		}
		tc := *tcfg
		tc.Upstream = endpoint
		if tc.PromRegistry == nil {
			tc.PromRegistry = cfg.PromRegistry
		}

		t, err := StartTunnel(&tc, logger)
		if err != nil {
			return nil, err
		}
		s.tunnel = t
	}

	logger.Infof("effective proxy address=%s strategy=%s", s.ProxyURL(), strategy)

	return s, nil
}

// Endpoint returns the normalized upstream proxy endpoint.
func (s *Session) Endpoint() *ProxyEndpoint {
	return s.endpoint
}

func (s *Session) Strategy() Strategy {
	return s.strategy
}

// Tunnel returns the bridge tunnel, or nil when the strategy is direct.
func (s *Session) Tunnel() *Tunnel {
	return s.tunnel
}

// ProxyURL returns the single effective proxy address to configure on the
// client: the tunnel's local address when bridging, the normalized
// upstream URL otherwise.
func (s *Session) ProxyURL() *url.URL {
	if s.tunnel != nil {
		return s.tunnel.ProxyURL()
	}
	return s.endpoint.URL()
}

// Close tears the session down. It is idempotent and never fails.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.tunnel != nil {
			s.tunnel.Stop()
		}
		s.log.Infof("session closed")
	})
	return nil
}
