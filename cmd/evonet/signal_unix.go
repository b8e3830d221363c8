//go:build !windows

package main

import (
	"os"
	"syscall"
)

// shutdownSignals cancel long-running commands (train, evolve, graph --serve).
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGHUP}
