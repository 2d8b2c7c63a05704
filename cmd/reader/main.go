package main

import "github.com/samvad-hq/samvad-reader/internal/cli"

func main() {
	cli.Execute()
}
