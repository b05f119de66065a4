package main

import "github.com/igor04091968/sing-l2tp/cmd"

func main() {
	cmd.Execute()
}
