package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"webcammonitor/internal/app"
)

func main() {
	application, err := app.New()
	if err != nil {
		log.Printf("Fatal: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		log.Printf("Fatal: %v", err)
		os.Exit(1)
	}
}
