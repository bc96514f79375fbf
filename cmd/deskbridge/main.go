package main

import (
	"log/slog"

	"github.com/deepakpathik/deskbridge/internal/cli"
	"github.com/deepakpathik/deskbridge/internal/logging"
)

func main() {
	// Errors only unless LOG_LEVEL says otherwise; the terminal UI owns stdout.
	logging.Init(slog.LevelError)
	cli.Execute()
}
