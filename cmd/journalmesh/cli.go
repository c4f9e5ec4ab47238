package main

import "github.com/alecthomas/kong"

// CLI defines the command-line interface.
type CLI struct {
	Globals

	Serve   ServeCmd   `cmd:"" help:"Serve the HTTP API"`
	Query   QueryCmd   `cmd:"" help:"Answer one message and print the workflow result"`
	Tools   ToolsCmd   `cmd:"" help:"List the registered tools by category"`
	Version VersionCmd `cmd:"" help:"Show version information"`
}

// Globals are flags shared by every command.
type Globals struct {
	Config   string `short:"c" type:"path" help:"Config file path (YAML)"`
	Demo     bool   `help:"Use the built-in scripted model instead of a provider"`
	LogLevel string `help:"Override log.level from the config"`
}

// ServeCmd runs the HTTP API.
type ServeCmd struct {
	Addr string `help:"Listen address (overrides server.addr)"`
}

// QueryCmd answers a single message.
type QueryCmd struct {
	Message string `arg:"" help:"Message to send"`
	User    string `short:"u" default:"local" help:"Caller user id"`
	Token   string `env:"JOURNALMESH_TOKEN" default:"local" help:"Caller auth token forwarded to tools"`
	Stream  bool   `help:"Print streamed model output to stderr"`
	Full    bool   `help:"Print the full workflow result as JSON"`
}

// ToolsCmd lists tools.
type ToolsCmd struct{}

// VersionCmd shows version information.
type VersionCmd struct{}

func kongVars() kong.Vars {
	return kong.Vars{
		"version": version,
	}
}
