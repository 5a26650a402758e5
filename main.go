package main

import "github.com/northcutted/dock-lens/cmd"

func main() {
	cmd.Execute()
}
