// SPDX-License-Identifier: MPL-2.0

package types

// ExitStatus is the outcome reported for a finished execution. Known is false
// when the backend could not determine an exit code.
type ExitStatus struct {
	Code  ExitCode
	Known bool
}

// KnownExit returns a status carrying code.
func KnownExit(code ExitCode) ExitStatus {
	return ExitStatus{Code: code, Known: true}
}

// UnknownExit returns a status without an exit code.
func UnknownExit() ExitStatus {
	return ExitStatus{}
}

// Failed reports whether the status counts as a failure: only a known,
// non-zero code does. An unknown code is treated as success.
func (s ExitStatus) Failed() bool {
	return s.Known && !s.Code.IsSuccess()
}

// String renders the code, or "unknown".
func (s ExitStatus) String() string {
	if !s.Known {
		return "unknown"
	}
	return s.Code.String()
}
