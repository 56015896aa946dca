package main

import "screen-sync/cmd"

func main() {
	cmd.Execute()
}
