// Command depthwatch measures the trade size that moves each configured
// asset's execution price by the target slippage, records the results, and
// exposes them through the CLI.
package main

import (
	"github.com/joho/godotenv"

	"depth-watch/internal/cli"
)

func main() {
	// Missing .env is fine; configuration falls back to real env vars and
	// the config file.
	_ = godotenv.Load()

	cli.Execute()
}
