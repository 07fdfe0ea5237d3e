package main

import (
	"github.com/matjam/drmcomp/internal/cli"
)

func main() {
	cli.Execute()
}
