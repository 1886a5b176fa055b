package main

import "github.com/idvault/authserver/cmd"

func main() {
	cmd.Execute()
}
