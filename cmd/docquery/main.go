package main

import (
	"fmt"
	"os"

	"docquery/internal/logging"
)

func main() {
	defer logging.Sync()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
