package main

import "relcli/cmd"

func main() {
	cmd.Execute()
}
