// Package main is the single-binary entrypoint for incstep: both the
// broker and every model process run this same binary, selected by
// subcommand.
package main

import "github.com/incstep-network/incstep/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
