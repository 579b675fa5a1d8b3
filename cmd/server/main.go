package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"skirmish/server/internal/app"
	"skirmish/server/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg, app.Options{}); err != nil {
		log.Fatalf("%v", err)
	}
}
