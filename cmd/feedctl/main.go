// Command feedctl is a terminal client for the MiniLink feed. Likes, comments,
// your own posts and your profile are kept in a local store on this device.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"minilink/internal/cli"
	"minilink/internal/config"
	"minilink/internal/storage"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "feedctl: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "feedctl: %v\n", err)
		return 1
	}
	defer store.Close()

	app, err := cli.New(ctx, cfg, store, os.Stdin, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "feedctl: %v\n", err)
		return 1
	}
	defer app.Close()

	if err := app.Run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, cli.ErrUsage) {
			fmt.Fprintf(os.Stderr, "feedctl: %v\n", err)
			return 2
		}
		fmt.Fprintf(os.Stderr, "feedctl: %v\n", err)
		return 1
	}
	return 0
}
