package main

import (
	"os"

	"github.com/activetigger/atstress/cmd/atstress/cmd"
	"github.com/activetigger/atstress/internal/common/logging"
)

// Config is handled by cmd/params.go
func main() {
	logging.ConfigureCliLogging()
	err := cmd.RootCmd().Execute()
	if err != nil {
		os.Exit(1)
	}
}
