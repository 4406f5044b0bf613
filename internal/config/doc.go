// Package config loads, validates, and normalizes Shelf's TOML configuration.
//
// Configuration resolves from an explicit --config path, then
// ~/.config/shelf/config.toml, then ./shelf.toml, falling back to built-in
// defaults when no file exists.
package config
