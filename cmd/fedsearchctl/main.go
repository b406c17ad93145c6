// Command fedsearchctl runs administrative operations against a fedsearch deployment.
package main

import (
	"os"

	"github.com/kailas-cloud/fedsearch/cmd/fedsearchctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
