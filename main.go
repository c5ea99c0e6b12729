package main

import "hstable-service/cmd"

func main() {
	cmd.Execute()
}
