package main

import "github.com/KaramelBytes/twincheck-cli/cmd"

func main() {
	cmd.Execute()
}
