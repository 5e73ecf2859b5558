package main

import "github.com/jjenkins/docregistry/cmd"

func main() {
	cmd.Execute()
}
