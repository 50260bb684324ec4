package main

import "cantata/internal/cli"

func main() {
	cli.Execute()
}
