package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/basedgoydev/greed-farm/cmd"

	log "github.com/sirupsen/logrus"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		stop()
		log.WithError(err).Fatal("Application error")
	}
}
