package main

import (
	"os"

	"github.com/solatis/linekeeper/cmd/linekeeper/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
