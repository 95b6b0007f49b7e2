package main

import "github.com/ValentinKolb/kBridge/cmd"

func main() {
	cmd.Execute()
}
