// Copyright 2024-2026 The proxybridge Authors, all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package version

import (
	"runtime"

	"github.com/sessionlabs/proxybridge/internal/version"
	"github.com/spf13/cobra"
)

func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println("Version:\t", version.Version)
			cmd.Println("Built time:\t", version.Time)
			cmd.Println("Git commit:\t", version.Commit)
			cmd.Println("Go Arch:\t", runtime.GOARCH)
			cmd.Println("Go OS:\t\t", runtime.GOOS)
			cmd.Println("Go Version:\t", runtime.Version())
		},
	}
}
