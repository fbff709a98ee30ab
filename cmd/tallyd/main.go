package main

import "github.com/tallyhouse/tally/internal/cli"

func main() {
	cli.Execute()
}
