package main

import "clubatlas/internal/cli"

func main() {
	cli.Execute()
}
