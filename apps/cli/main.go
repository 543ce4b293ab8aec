package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/tourdesk/tourdesk-saas/apps/cli/root"
)

func main() {
	// Operators usually run the CLI next to the API's .env.
	_ = godotenv.Load()

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
