package main

import "github.com/rsg-tillsyn/tillsyn-assist/cmd"

func main() {
	cmd.Execute()
}
