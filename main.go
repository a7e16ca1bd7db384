package main

import "github.com/fkoehler/cellar/cmd"

func main() {
	cmd.Execute()
}
