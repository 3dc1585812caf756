package main

import (
	"os"

	"bilancio/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
