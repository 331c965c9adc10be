// SPDX-License-Identifier: MPL-2.0

//go:build windows

package agent

import (
	"io"
	"os"
	"os/exec"
)

// startPty falls back to a pipe pair; there is no pty on Windows.
func startPty(cmd *exec.Cmd) (*os.File, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	cmd.Stdout = w
	cmd.Stderr = w
	if err := cmd.Start(); err != nil {
		_ = r.Close()
		_ = w.Close()
		return nil, err
	}
	_ = w.Close()
	return r, nil
}

func setWinsize(*os.File, int, int) {}

func copyBuffer(dst io.Writer, src io.Reader) (int64, error) {
	return io.Copy(dst, src)
}
