package main

import "github.com/Ramsey-B/clover/cmd/clover/cmd"

var version = "dev"

func main() {
	cmd.Execute(version)
}
