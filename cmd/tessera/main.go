// Package main is the entry point for the tessera server.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/tessera-ai/tessera/internal/tessera"
)

func main() {
	tessera.NewApp().Run()
}
