// Copyright 2024-2026 The proxybridge Authors, all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package proxybridge

import (
	"github.com/sessionlabs/proxybridge/bind"
	"github.com/sessionlabs/proxybridge/command/check"
	"github.com/sessionlabs/proxybridge/command/run"
	"github.com/sessionlabs/proxybridge/command/version"
	"github.com/sessionlabs/proxybridge/utils/cobrautil"
	"github.com/spf13/cobra"
)

const (
	EnvPrefix          = "PROXYBRIDGE"
	ConfigFileFlagName = "config-file"
)

func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proxybridge",
		Short: "Upstream proxy resolver and local SOCKS bridge for browser automation sessions",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cobrautil.BindAll(cmd, EnvPrefix, ConfigFileFlagName)
		},
	}
	bind.ConfigFile(cmd.PersistentFlags(), new(string))

	cmd.AddCommand(
		run.Command(),
		check.Command(),
		version.Command(),
	)

	for _, sub := range cmd.Commands() {
		cobrautil.AppendEnvToUsage(sub, EnvPrefix)
	}

	return cmd
}
