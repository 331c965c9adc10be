// SPDX-License-Identifier: MPL-2.0

// Package agent runs inside a component and executes the shell lines devtask
// sends it over SSH.
//
// The agent accepts password authentication only; the password is a token,
// either the static one from configuration or one generated at startup with
// a limited lifetime. Exec requests are interpreted with mvdan.cc/sh unless a
// system shell is configured, and the remote exit status is reported back to
// the client. Requests without a command get an interactive shell on a pty.
package agent
