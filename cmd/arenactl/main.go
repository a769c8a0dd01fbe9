package main

import "github.com/mcoot/arenaengine/internal/cli"

func main() {
	cli.Execute()
}
