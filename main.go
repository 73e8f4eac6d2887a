package main

import "github.com/nextlevelbuilder/chanlink/cmd"

func main() {
	cmd.Execute()
}
