package main

import "github.com/quasar/mcinstall/internal/cli"

func main() {
	cli.Execute()
}
