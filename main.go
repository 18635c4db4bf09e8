package main

import "github.com/jcdickinson/kbpress/cmd"

func main() {
	cmd.Execute()
}
