package main

import (
	"os"

	"github.com/anhlinh-II/thukhoa-ta-sub000/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
