package main

import "go-loopstation/cmd"

func main() {
	cmd.Execute()
}
