// Copyright 2024-2026 The proxybridge Authors, all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package check

import (
	"context"
	"errors"
	"fmt"

	"github.com/sessionlabs/proxybridge"
	"github.com/sessionlabs/proxybridge/bind"
	"github.com/sessionlabs/proxybridge/log"
	"github.com/sessionlabs/proxybridge/log/stdlog"
	"github.com/spf13/cobra"
)

type command struct {
	sessionConfig *proxybridge.SessionConfig
	logConfig     *log.Config
}

func (c *command) runE(cmd *cobra.Command, _ []string) error {
	logger := stdlog.New(c.logConfig)

	endpoint, err := proxybridge.ParseProxyEndpoint(c.sessionConfig.Proxy, c.sessionConfig.DefaultScheme)
	if err != nil {
		return err
	}
	cmd.Println("proxy:", endpoint.Redacted())

	p, err := proxybridge.NewProber(endpoint, nil, logger)
	if err != nil {
		return err
	}
	if err := p.Probe(context.Background(), c.sessionConfig.Check); err != nil {
		var cerr *proxybridge.ConnectivityError
		if errors.As(err, &cerr) {
			for i := range cerr.Attempts {
				a := &cerr.Attempts[i]
				cmd.Printf("%s: %s\n", a.URL, a.Err)
			}
		}
		cmd.SilenceUsage = true
		return fmt.Errorf("proxy %s is not reachable", endpoint.Redacted())
	}

	cmd.Println("OK")
	return nil
}

func Command() *cobra.Command {
	c := command{
		sessionConfig: proxybridge.DefaultSessionConfig(),
		logConfig:     log.DefaultConfig(),
	}

	cmd := &cobra.Command{
		Use:   "check --proxy <spec> --check-url <url>",
		Short: "Verify that the upstream proxy is reachable",
		RunE:  c.runE,
	}

	fs := cmd.Flags()
	bind.Proxy(fs, &c.sessionConfig.Proxy, &c.sessionConfig.DefaultScheme)
	bind.ProbeConfig(fs, c.sessionConfig.Check)
	bind.LogConfig(fs, c.logConfig)

	cmd.MarkFlagRequired("proxy")

	return cmd
}
