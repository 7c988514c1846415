package main

import "github.com/KaramelBytes/csvchat/cmd"

func main() {
	cmd.Execute()
}
