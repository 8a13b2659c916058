package main

import "github.com/kamusis/opsroute/cmd"

func main() {
	cmd.Execute()
}
