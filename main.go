package main

import (
	"os"

	"github.com/conneroisu/mixpaths/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
