package main

import "github.com/dhvos/dhvos-go/cmd"

func main() {
	cmd.Execute()
}
