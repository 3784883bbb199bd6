// Package cli provides the shared plumbing of the geminilive command-line
// tool.
//
// This package includes:
//   - Configuration management (named contexts, like kubectl)
//   - Output formatting (JSON, YAML, raw) and styled terminal messages
//   - Request file loading (YAML/JSON)
//
// Configuration is stored in ~/.giztoy/<app>/config.yaml.
//
//	cfg, err := cli.LoadConfig("geminilive")
//	ctx, err := cfg.ResolveContext(name)
package cli
