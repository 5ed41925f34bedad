package main

import "github.com/rnwolfe/envoluntary/cmd"

func main() {
	cmd.Execute()
}
