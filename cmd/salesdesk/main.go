package main

import (
	"os"

	"github.com/evalops/sales-desk/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
