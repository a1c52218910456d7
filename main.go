package main

import "github.com/audiolibrelab/looprec/cmd"

func main() {
	cmd.Execute()
}
