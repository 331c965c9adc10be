// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"runtime"
	"testing"
)

// SetHomeDir points the platform's home and config-home variables at dir and
// returns a cleanup function restoring them. Tests using it must not call
// t.Parallel.
//
//	t.Cleanup(testutil.SetHomeDir(t, t.TempDir()))
func SetHomeDir(t testing.TB, dir string) func() {
	t.Helper()

	if runtime.GOOS == "windows" {
		restoreProfile := MustSetenv(t, "USERPROFILE", dir)
		restoreAppData := MustSetenv(t, "APPDATA", dir)
		return func() {
			restoreAppData()
			restoreProfile()
		}
	}
	restoreHome := MustSetenv(t, "HOME", dir)
	restoreXDG := MustSetenv(t, "XDG_CONFIG_HOME", "")
	return func() {
		restoreXDG()
		restoreHome()
	}
}
