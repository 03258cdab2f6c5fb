// Copyright 2024-2026 The proxybridge Authors, all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package version

// Set at build time with -ldflags.
var (
	Version = "devel"
	Time    = "unknown"
	Commit  = "unknown"
)
