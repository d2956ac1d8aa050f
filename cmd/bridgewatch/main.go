package main

import "github.com/ledgerops/bridgewatch/internal/cli"

func main() {
	cli.Execute()
}
