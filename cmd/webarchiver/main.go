package main

import (
	cmd "github.com/brackenforge/webarchiver/internal/cli"
)

func main() {
	cmd.Execute()
}
