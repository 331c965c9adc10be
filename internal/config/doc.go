// SPDX-License-Identifier: MPL-2.0

// Package config handles devtask configuration using Viper with CUE as the
// file format.
//
// Configuration is layered: built-in defaults, then config.cue from the
// config directory (~/.config/devtask on Linux, ~/Library/Application
// Support/devtask on macOS, %APPDATA%\devtask on Windows) or an explicit
// --config path, then DEVTASK_* environment variables (DEVTASK_LOG_LEVEL,
// DEVTASK_BACKEND_DEFAULT, ...). Files are validated against the embedded
// config_schema.cue.
//
// Viper lowercases map keys, so component names are matched
// case-insensitively.
package config
