// Package main provides the entry point for the quill server.
package main

import (
	"fmt"
	"os"

	"github.com/quillworks/quill/cmd/quill-server/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
