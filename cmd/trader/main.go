package main

import (
	"os"

	"github.com/ttdog1020/Cryptobot-sub000/cmd/trader/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
