// Copyright (c) 2024 The illium developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package repo

import "fmt"

const (
	appMajor uint = 0
	appMinor uint = 1
	appPatch uint = 0
)

// VersionString returns the application version as a semver string.
func VersionString() string {
	return fmt.Sprintf("%d.%d.%d", appMajor, appMinor, appPatch)
}
