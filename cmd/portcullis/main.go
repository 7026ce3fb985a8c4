package main

import "github.com/jmcleod/portcullis/cmd/portcullis/cmd"

func main() {
	cmd.Execute()
}
