package main

import "audiosession/cmd"

func main() {
	cmd.Execute()
}
