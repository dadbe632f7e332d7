package main

import (
	"log"

	"github.com/robotalks/garagedoor/pkg/cli/sh"
	"github.com/robotalks/garagedoor/pkg/config"
)

//go-build: CGO_ENABLED=0

func init() {
	config.SetupClientFlags()
}

func main() {
	log.SetFlags(log.Lmicroseconds)
	sh.Main()
}
