package main

import (
	"os"

	"github.com/harambee-dev/harambee/internal/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
