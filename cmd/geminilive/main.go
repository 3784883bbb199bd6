// Package main provides the Gemini Live CLI tool.
//
// Usage:
//
//	geminilive [flags] <command> [args]
//
// Commands:
//
//	chat     - Interactive text chat over a live session
//	stream   - Stream a PCM file as realtime audio
//	setup    - Print the setup frame for a session config (dry run)
//	config   - Configuration management
//
// Configuration:
//
//	The CLI stores configuration in ~/.giztoy/geminilive/
//	Use 'geminilive config' commands to manage contexts. A .env file in the
//	working directory is loaded first; GEMINI_API_KEY is used when no
//	context is configured.
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/geminilive/cmd/geminilive/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
