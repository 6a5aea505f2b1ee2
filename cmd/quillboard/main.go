// Command quillboard runs the collaborative text server: the OT engine,
// the document registry, the SQLite archive, and the chi-routed HTTP
// surface, wired together and served until an interrupt.
//
// Grounded on the teacher's cmd/server/main.go, rewired onto
// github.com/spf13/cobra for flags and github.com/joho/godotenv for
// .env loading, the way the pack's opencode and wingthing CLIs do it.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
