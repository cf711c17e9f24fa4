package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"habitTracker/internal/app"
	"habitTracker/internal/config"
	"habitTracker/internal/logger"
)

func main() {
	cfg, err := config.Load("config.yml")
	if err != nil {
		fmt.Fprintln(os.Stderr, "ошибка конфигурации:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(cfg).Init(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := application.Run(ctx); err != nil {
		logger.Error("App: Приложение остановлено с ошибкой", err)
		logger.Sync()
		os.Exit(1)
	}
}
