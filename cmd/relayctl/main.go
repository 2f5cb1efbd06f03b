package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	a := newApp()
	err := execute(ctx, newRootCmd(a))
	a.close()
	stop()
	if err != nil {
		os.Exit(1)
	}
}
