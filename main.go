package main

import "github.com/CraigKelly/jsdm/cmd"

func main() {
	cmd.Execute()
}
