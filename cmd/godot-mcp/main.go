package main

import (
	"os"

	"github.com/lydakis/godot-mcp/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:]))
}
