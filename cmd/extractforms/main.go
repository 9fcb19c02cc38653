package main

import "github.com/Guillaume-Lombardo/extractforms/cmd/extractforms/cmd"

func main() {
	cmd.Execute()
}
