// Copyright 2024-2026 The proxybridge Authors, all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package run

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sessionlabs/proxybridge"
	"github.com/sessionlabs/proxybridge/bind"
	"github.com/sessionlabs/proxybridge/internal/version"
	"github.com/sessionlabs/proxybridge/log"
	"github.com/sessionlabs/proxybridge/log/stdlog"
	"github.com/sessionlabs/proxybridge/runctx"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/goleak"
	"go.uber.org/multierr"
)

type command struct {
	promReg         *prometheus.Registry
	sessionConfig   *proxybridge.SessionConfig
	apiServerConfig *proxybridge.HTTPServerConfig
	logConfig       *log.Config

	goleak bool
}

func (c *command) runE(cmd *cobra.Command, _ []string) (cmdErr error) {
	if f := c.logConfig.File; f != nil {
		defer f.Close()
	}
	logger := stdlog.New(c.logConfig)

	defer func() {
		if cmdErr != nil {
			logger.Errorf("fatal error exiting: %s", cmdErr)
			cmd.SilenceErrors = true
		}
	}()

	logger.Infof("Proxybridge %s (%s)", version.Version, version.Commit)

	cfg := describeFlags(cmd.Flags())
	if cfg != "" {
		logger.Infof("configuration\n%s", cfg)
	} else {
		logger.Infof("using default configuration")
	}

	if err := c.registerProcMetrics(); err != nil {
		return fmt.Errorf("register process metrics: %w", err)
	}
	c.sessionConfig.PromRegistry = c.promReg

	if c.goleak {
		defer func() {
			if err := goleak.Find(); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "goleak: %s\n", err)
			}
		}()
	}

	s, err := proxybridge.NewSession(context.Background(), c.sessionConfig, logger.Named("session"))
	if err != nil {
		return err
	}
	defer s.Close()

	g := runctx.NewGroup()

	if t := s.Tunnel(); t != nil {
		g.Add(t.Run)
	}

	ready := func() bool {
		t := s.Tunnel()
		return t == nil || t.State() == proxybridge.TunnelRunning
	}
	a, err := proxybridge.NewHTTPServer(c.apiServerConfig, proxybridge.NewAPIHandler(c.promReg, ready, cfg), logger.Named("api"))
	if err != nil {
		return err
	}
	defer a.Close()
	g.Add(a.Run)

	return g.Run()
}

// describeFlags lists the flags changed from their defaults, one per line,
// with credentials redacted.
func describeFlags(fs *pflag.FlagSet) string {
	var b strings.Builder
	fs.Visit(func(f *pflag.Flag) {
		v := f.Value.String()
		if f.Name == "proxy" {
			v = proxybridge.RedactProxySpec(v)
		}
		fmt.Fprintf(&b, "%s=%s\n", f.Name, v)
	})
	return b.String()
}

func (c *command) registerProcMetrics() error {
	return multierr.Combine(
		// Note that ProcessCollector is only available in Linux and Windows.
		c.promReg.Register(collectors.NewProcessCollector(
			collectors.ProcessCollectorOpts{Namespace: "proxybridge"})),
		c.promReg.Register(collectors.NewGoCollector()),
	)
}

func Command() *cobra.Command {
	c := makeCommand()

	cmd := &cobra.Command{
		Use:   "run [--proxy <spec>] [--check-url <url>]",
		Short: "Resolve and bridge the upstream proxy for a client session",
		Long: "Normalize the configured upstream proxy, verify it is reachable and expose " +
			"the single effective proxy address for the client to use. When the upstream " +
			"requires authenticated SOCKS and the client cannot speak it, a local bridge " +
			"tunnel translating HTTP CONNECT to the SOCKS upstream is started on loopback. " +
			"The effective address is logged and the process serves it until interrupted.",
		RunE: c.runE,
	}

	fs := cmd.Flags()
	bind.SessionConfig(fs, c.sessionConfig)
	bind.ProbeConfig(fs, c.sessionConfig.Check)
	bind.TunnelConfig(fs, c.sessionConfig.Tunnel)
	bind.HTTPServerConfig(fs, c.apiServerConfig)
	bind.LogConfig(fs, c.logConfig)

	fs.BoolVar(&c.goleak, "goleak", false, "enable goleak")
	fs.MarkHidden("goleak")

	return cmd
}

func makeCommand() command {
	return command{
		promReg:         prometheus.NewRegistry(),
		sessionConfig:   proxybridge.DefaultSessionConfig(),
		apiServerConfig: proxybridge.DefaultHTTPServerConfig(),
		logConfig:       log.DefaultConfig(),
	}
}
