package main

import "fidoochat/internal/cli"

func main() {
	cli.Execute()
}
