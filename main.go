// SPDX-License-Identifier: MPL-2.0

// devtask runs devfile commands and composites locally or on component agents.
package main

import cmd "github.com/devtask/devtask/cmd/devtask"

func main() {
	cmd.Execute()
}
