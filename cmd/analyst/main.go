package main

import (
	"os"

	"github.com/smsh73/AAA/cmd/analyst/commands"
)

// main is the entry point for the analyst evaluation CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/analyst [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
