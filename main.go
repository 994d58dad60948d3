package main

import "github.com/pinkman-dev/pinkman/cmd/pinkman"

func main() {
	pinkman.Execute()
}
