package main

import (
	"os"

	"github.com/quantumgate/quantum-api-deploy/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
