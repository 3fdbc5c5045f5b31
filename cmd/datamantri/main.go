// Package main is the entry point for the datamantri binary.
package main

import (
	"os"

	"github.com/good-yellow-bee/datamantri/cmd/datamantri/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
