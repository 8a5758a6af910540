package main

import "github.com/andresmejia3/camcal/cmd"

func main() {
	cmd.Execute()
}
