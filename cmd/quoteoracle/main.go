package main

import "quote-oracle/internal/cli"

func main() {
	cli.Execute()
}
