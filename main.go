package main

import "tomodachi-cheki/cmd"

func main() {
	cmd.Run()
}
