// ./main.go
package main

import (
	"github.com/hliang2/chatspider/cmd"
)

// main is the entry point for the chatspider CLI.
func main() {
	// Execute the root command defined in the cmd package.
	// This handles all command-line parsing, configuration, and execution.
	cmd.Execute()
}
