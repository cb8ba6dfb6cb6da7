package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/austindbirch/logframe/cmd/logframectl/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		log.Fatal(err)
	}
}
