//go:build windows

package main

import "os"

// shutdownSignals cancel long-running commands. Windows only delivers Ctrl-C.
var shutdownSignals = []os.Signal{os.Interrupt}
