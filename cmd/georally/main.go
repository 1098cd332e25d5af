package main

import "github.com/mcoot/georally/internal/cli"

func main() {
	cli.Execute()
}
