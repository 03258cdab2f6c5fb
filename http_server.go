// Copyright 2024-2026 The proxybridge Authors, all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package proxybridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sessionlabs/proxybridge/log"
)

type HTTPServerConfig struct {
	Addr        string
	ReadTimeout time.Duration
	IdleTimeout time.Duration
}

func DefaultHTTPServerConfig() *HTTPServerConfig {
	return &HTTPServerConfig{
		Addr:        "localhost:10000",
		ReadTimeout: 5 * time.Second,
		IdleTimeout: time.Minute,
	}
}

func (c *HTTPServerConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("address cannot be empty")
	}
	return nil
}

// HTTPServer is a plain HTTP server for the operator API.
// NewHTTPServer binds the listener, it is the caller's responsibility to
// call Close on the returned server.
type HTTPServer struct {
	config *HTTPServerConfig
	log    log.Logger
	srv    *http.Server

	listener net.Listener
}

func NewHTTPServer(cfg *HTTPServerConfig, h http.Handler, log log.Logger) (*HTTPServer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	hs := &HTTPServer{
		config: cfg,
		log:    log,
		srv: &http.Server{
			Handler:     h,
			ReadTimeout: cfg.ReadTimeout,
			IdleTimeout: cfg.IdleTimeout,
		},
	}

	l, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, err
	}
	hs.listener = l

	hs.log.Infof("API server listen address=%s", l.Addr())

	return hs, nil
}

func (hs *HTTPServer) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()

		<-ctx.Done()
		if err := hs.srv.Shutdown(context.Background()); err != nil {
			hs.log.Errorf("failed to shutdown server error=%s", err)
		}
	}()

	err := hs.srv.Serve(hs.listener)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	wg.Wait()
	return nil
}

// Addr returns the address the server is listening on.
func (hs *HTTPServer) Addr() string {
	return hs.listener.Addr().String()
}

func (hs *HTTPServer) Close() error {
	err := hs.srv.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
