// Package main is the entry point for the registry OAuth authorization server.
package main

import (
	"fmt"
	"os"

	"github.com/dlddu/registry-oauth/cmd/authserver/app"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
