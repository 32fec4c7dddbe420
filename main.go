package main

import "obesityboard/cmd"

func main() {
	cmd.Execute()
}
