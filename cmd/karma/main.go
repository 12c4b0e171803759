// Package main is the single-binary entrypoint for karma.
package main

import (
	"github.com/joho/godotenv"

	"github.com/tutu-network/karma/internal/cli"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	// A .env in the working directory seeds KARMA_* before config loads.
	_ = godotenv.Load()
	cli.Execute(version)
}
