package main

import (
	"fmt"
	"os"

	"github.com/tp12121212/sit-builder/cmd/sitctl/cmd"
)

var version = "dev"

func main() {
	cmd.SetVersion(version)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
