package main

import "github.com/kioskd/kioskd/cmd/cli"

func main() {
	cli.Execute()
}
