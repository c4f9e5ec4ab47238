// Command journalmesh runs the journaling agent team from the command line
// or as an HTTP service.
package main

import (
	"github.com/alecthomas/kong"
)

// Build-time variables (set via ldflags)
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("journalmesh"),
		kong.Description("Multi-agent journaling assistant"),
		kong.UsageOnError(),
		kongVars(),
	)
	ctx.FatalIfErrorf(ctx.Run(&cli.Globals))
}
