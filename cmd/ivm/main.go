package main

import "github.com/javanhut/ivaldi-mutations/cli"

func main() {
	cli.Execute()
}
