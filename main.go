package main

import "github.com/tanq16/ytpull/cmd"

func main() {
	cmd.Execute()
}
