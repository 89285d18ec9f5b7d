//go:build windows

package doctor

import (
	"os"
	"os/signal"
)

func resetTerminal() {
	// The Windows console restores itself; nothing to undo.
}

func setupInterruptHandler() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		resetTerminal()
		println("\nInterrupted")
		os.Exit(1)
	}()
}
