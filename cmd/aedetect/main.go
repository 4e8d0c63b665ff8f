package main

import (
	"fmt"
	"os"

	"github.com/hed1ad/aedetect/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "aedetect:", err)
		os.Exit(1)
	}
}
