package main

import (
	"os"

	"farb/cmd/farb/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
