package main

import (
	"os"

	"github.com/solatis/tradepromo/cmd/tradepromo/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
