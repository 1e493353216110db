package main

import "github.com/telsin/riptide/cmd"

func main() {
	cmd.Execute()
}
