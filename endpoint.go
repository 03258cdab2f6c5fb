// Copyright 2024-2026 The proxybridge Authors, all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package proxybridge

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Scheme is an upstream proxy protocol scheme.
type Scheme string

const (
	HTTPScheme    Scheme = "http"
	HTTPSScheme   Scheme = "https"
	SOCKS4Scheme  Scheme = "socks4"
	SOCKS5Scheme  Scheme = "socks5"
	SOCKS5HScheme Scheme = "socks5h"
)

var proxySchemes = []Scheme{HTTPScheme, HTTPSScheme, SOCKS4Scheme, SOCKS5Scheme, SOCKS5HScheme} //nolint:gochecknoglobals // this is needed for parsing

func (s Scheme) String() string {
	return string(s)
}

func (s *Scheme) UnmarshalText(text []byte) error {
	v := Scheme(text)
	if !v.isValid() {
		return fmt.Errorf("unsupported proxy scheme %q, supported schemes are: %s", text, schemesString())
	}
	*s = v
	return nil
}

func (s Scheme) isValid() bool {
	switch s {
	case HTTPScheme, HTTPSScheme, SOCKS4Scheme, SOCKS5Scheme, SOCKS5HScheme:
		return true
	default:
		return false
	}
}

// IsSOCKS returns true for the SOCKS protocol family.
func (s Scheme) IsSOCKS() bool {
	switch s {
	case SOCKS4Scheme, SOCKS5Scheme, SOCKS5HScheme:
		return true
	default:
		return false
	}
}

func schemesString() string {
	v := make([]string, len(proxySchemes))
	for i := range proxySchemes {
		v[i] = string(proxySchemes[i])
	}
	return strings.Join(v, ", ")
}

// ProxyEndpoint is a normalized upstream proxy specification.
// It is immutable after creation, create it with ParseProxyEndpoint.
type ProxyEndpoint struct {
	Scheme Scheme
	Host   string
	Port   int
	// User holds both username and password, or is nil.
	// Partial credentials are rejected at parse time.
	User *url.Userinfo
}

// HostPort returns the endpoint address in host:port form.
func (p *ProxyEndpoint) HostPort() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// URL returns the canonical scheme://[user:pass@]host:port URL.
func (p *ProxyEndpoint) URL() *url.URL {
	return &url.URL{
		Scheme: string(p.Scheme),
		User:   p.User,
		Host:   p.HostPort(),
	}
}

func (p *ProxyEndpoint) String() string {
	return p.URL().String()
}

// Redacted is like String with the password masked, use it for logging.
func (p *ProxyEndpoint) Redacted() string {
	return p.URL().Redacted()
}

// RedactProxySpec masks the password in a raw proxy specification,
// use it when logging unparsed configuration values.
func RedactProxySpec(raw string) string {
	if strings.Contains(raw, "://") {
		if u, err := url.Parse(raw); err == nil {
			return u.Redacted()
		}
		return raw
	}
	if p := strings.Split(raw, ":"); len(p) == 4 {
		return strings.Join([]string{p[0], p[1], p[2], "xxxxx"}, ":")
	}
	return raw
}

// ParseProxyEndpoint normalizes a raw proxy specification.
//
// The accepted forms are, in priority order:
//   - scheme://[user:pass@]host:port
//   - host:port:user:pass wrapped with defaultScheme
//   - host:port wrapped with defaultScheme
//
// The supported schemes are: http, https, socks4, socks5, socks5h.
// Credentials must be specified with both username and password or not at all.
func ParseProxyEndpoint(raw string, defaultScheme Scheme) (*ProxyEndpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, &FormatError{Raw: raw, Reason: "empty proxy specification"}
	}
	if !defaultScheme.isValid() {
		return nil, &ConfigurationError{
			Reason: fmt.Sprintf("unsupported default proxy scheme %q, supported schemes are: %s", defaultScheme, schemesString()),
		}
	}

	if strings.Contains(raw, "://") {
		return parseProxyURL(raw)
	}

	p := strings.Split(raw, ":")
	switch len(p) {
	case 2:
		return newProxyEndpoint(raw, defaultScheme, p[0], p[1], nil)
	case 4:
		if p[2] == "" || p[3] == "" {
			return nil, &FormatError{Raw: raw, Reason: "username and password cannot be empty"}
		}
		return newProxyEndpoint(raw, defaultScheme, p[0], p[1], url.UserPassword(p[2], p[3]))
	default:
		return nil, &FormatError{Raw: raw, Reason: "expected host:port or host:port:username:password"}
	}
}

func parseProxyURL(raw string) (*ProxyEndpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &FormatError{Raw: raw, Reason: err.Error()}
	}

	s := Scheme(u.Scheme)
	if !s.isValid() {
		return nil, &FormatError{
			Raw:    raw,
			Reason: fmt.Sprintf("unsupported scheme %q, supported schemes are: %s", u.Scheme, schemesString()),
		}
	}
	if err := validateUserinfo(u.User); err != nil {
		return nil, &FormatError{Raw: raw, Reason: err.Error()}
	}

	return newProxyEndpoint(raw, s, u.Hostname(), u.Port(), u.User)
}

func newProxyEndpoint(raw string, scheme Scheme, host, port string, user *url.Userinfo) (*ProxyEndpoint, error) {
	if host == "" {
		return nil, &FormatError{Raw: raw, Reason: "hostname cannot be empty"}
	}
	if port == "" {
		return nil, &FormatError{Raw: raw, Reason: "port is required"}
	}
	p, err := strconv.Atoi(port)
	if err != nil || p < 1 || p > 65535 {
		return nil, &FormatError{Raw: raw, Reason: fmt.Sprintf("invalid port %q", port)}
	}

	return &ProxyEndpoint{
		Scheme: scheme,
		Host:   host,
		Port:   p,
		User:   user,
	}, nil
}

func validateUserinfo(ui *url.Userinfo) error {
	if ui == nil {
		return nil
	}
	if ui.Username() == "" {
		return fmt.Errorf("username cannot be empty")
	}
	if p, ok := ui.Password(); !ok || p == "" {
		return fmt.Errorf("password cannot be empty")
	}
	return nil
}
