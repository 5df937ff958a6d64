package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/dockeeper/internal/buildinfo"
	"github.com/dmitrijs2005/dockeeper/internal/client/cli"
	"github.com/dmitrijs2005/dockeeper/internal/client/config"
	"github.com/dmitrijs2005/dockeeper/internal/logging"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()

	logger, closer := logging.New(logging.Options{
		File:       cfg.LogFile,
		Level:      cfg.LogLevel,
		MaxSizeMB:  10,
		MaxBackups: 3,
	})
	defer closer.Close()

	app, err := cli.NewApp(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	app.Run(ctx)

}
