// Package main provides the esmvaltool driver CLI.
package main

import (
	"os"

	"github.com/evalstack/esmvaltool/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
