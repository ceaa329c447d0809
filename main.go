package main

import "slidecast/cmd"

func main() {
	cmd.Execute()
}
