package main

import "github.com/encodeous/dvnode/cmd"

func main() {
	cmd.Execute()
}
