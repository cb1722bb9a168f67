package main

import "jersey-hub/cmd"

func main() {
	cmd.Execute()
}
