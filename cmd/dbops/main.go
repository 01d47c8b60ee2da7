package main

import (
	"os"

	"github.com/frobelworks/dbops/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
