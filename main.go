package main

import "github.com/tanq16/utools/cmd"

func main() {
	cmd.Execute()
}
