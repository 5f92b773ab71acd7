package main

import (
	"fmt"
	"os"

	"github.com/ayo6706/anchor-platform/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "anchor platform: %v\n", err)
		os.Exit(1)
	}
}
