// Command hybridctl is the operator CLI for the hybrid search index.
//
// Usage:
//
//	hybridctl [-c configs/development.yaml] <command>
package main

import (
	"os"

	"github.com/aerospike-examples/hybrid-search/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
