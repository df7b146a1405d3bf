package main

import (
	"github.com/chiquitav2/wg-dark/cmd/wg-dark/cmd"
)

func main() {
	cmd.Execute()
}
