package drmcomp

import (
	_ "embed"
)

//go:embed VERSION
var Version string

//go:embed drmcomp.toml
var DefaultConfig string
