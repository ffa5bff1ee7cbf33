package main

import (
	"fmt"
	"os"

	"fuzzexp/internal/cli"

	_ "go.uber.org/automaxprocs"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
