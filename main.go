package main

import "github.com/ValentinKolb/marines/cmd"

func main() {
	cmd.Execute()
}
