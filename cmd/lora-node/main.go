package main

import "github.com/chonal/lora-node/cmd/lora-node/cmd"

var version string // set by the compiler

func main() {
	cmd.Execute(version)
}
