package main

import "discuss/cmd/server/commands"

func main() {
	commands.Execute()
}
