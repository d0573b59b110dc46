package main

import (
	"os"

	"github.com/SoftKiwiGames/hermes/hermes"
)

func main() {
	hermes.New(os.Stdout, os.Stderr).Run()
}
