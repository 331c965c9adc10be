// SPDX-License-Identifier: MPL-2.0

package types

import "testing"

func TestExitStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		status     ExitStatus
		wantFailed bool
		wantString string
	}{
		{"zero", KnownExit(0), false, "0"},
		{"two", KnownExit(2), true, "2"},
		{"unknown", UnknownExit(), false, "unknown"},
		{"unknown ignores code", ExitStatus{Code: 7}, false, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.status.Failed(); got != tt.wantFailed {
				t.Errorf("Failed() = %v, want %v", got, tt.wantFailed)
			}
			if got := tt.status.String(); got != tt.wantString {
				t.Errorf("String() = %q, want %q", got, tt.wantString)
			}
		})
	}
}
