package main

import "josephlewis.net/pipesh/cmd"

func main() {
	cmd.Execute()
}
