package main

import (
	"os"

	appLog "calgrid/internal/log"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	err := newRootCmd().Execute()
	appLog.Sync()
	if err != nil {
		os.Exit(1)
	}
}
