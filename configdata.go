// Package tshell embeds the shell's default configuration file.
//
// The root package exists solely to embed config.default.toml via
// [DefaultConfigTOML], which cmd/tshell copies into the data directory on
// first run.
package tshell

import _ "embed"

// DefaultConfigTOML holds the raw bytes of config.default.toml.
//
//go:embed config.default.toml
var DefaultConfigTOML []byte
