// Package main provides the iShe CLI.
//
// Usage:
//
//	ishe [flags] <command> [args]
//
// Commands:
//
//	serve          - Run the backend HTTP server
//	talk           - Run a realtime voice session against a backend
//	conversations  - Query stored conversation history
//	token          - Mint a development access token
//	config         - Configuration management
//	version        - Print the version
//
// Configuration:
//
//	The CLI stores configuration in ~/.ishe/ishe/
//	Use 'ishe config' commands to manage contexts.
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/ishe/cmd/ishe/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
