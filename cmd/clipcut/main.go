package main

import "clipcut/internal/cli"

func main() {
	cli.Main()
}
