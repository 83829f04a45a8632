package main

import "spotplot/internal/cli"

func main() {
	cli.Execute()
}
