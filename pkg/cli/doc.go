// Package cli provides common CLI utilities for the ishe command.
//
// This package includes:
//   - Configuration management (contexts pointing at backends)
//   - Output formatting (JSON, YAML)
//   - Profile file loading (YAML/JSON)
//   - Transcript styling
//
// Configuration is stored in ~/.ishe/<app>/ directory, supporting
// multiple contexts similar to kubectl.
//
// Example usage:
//
//	cfg, err := cli.LoadConfig("ishe")
//
//	ctx, err := cfg.ResolveContext("")
//
//	cli.Output(history, cli.OutputOptions{Format: cli.FormatJSON})
package cli
