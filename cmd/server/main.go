package main

import (
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"chatrelay/internal/config"
	"chatrelay/internal/server"
)

func main() {
	cfgPath := flag.String("config", "chatrelay.toml", "path to the TOML config file")
	addr := flag.String("addr", "", "TCP address to listen on (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Listen.Addr = *addr
	}

	log := newLogger(cfg.Logging)
	srv := server.New(cfg, log)

	// Graceful shutdown on SIGINT / SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Info("shutting down")
		srv.Shutdown()
	}()

	if err := srv.ListenAndServe(cfg.Listen.Addr); err != nil {
		log.Error("listener failed", "err", err)
		os.Exit(1)
	}
}

// newLogger builds the process logger from the logging config.  Unknown
// levels and formats fall back to info/text.
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
