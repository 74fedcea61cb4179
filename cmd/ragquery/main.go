package main

import "github.com/orbitalmind/satrag/internal/cli"

func main() {
	cli.Execute()
}
