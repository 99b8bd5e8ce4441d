package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"node.town/asrbench/db"
	"node.town/asrbench/www"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start an HTTP server with recorded runs and a scoring endpoint",
	Run:   runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 4444, "Port to run the HTTP server on")
}

func runServe(cmd *cobra.Command, args []string) {
	mainLogger := logger.With().WithPrefix("main")
	s := settings()
	port, _ := cmd.Flags().GetInt("port")

	ctx, cancel := signalContext()
	defer cancel()

	var runs www.RunLister
	if s.DatabaseURL != "" {
		store, err := db.Open(ctx, s.DatabaseURL, nil, logger.With().WithPrefix("data"))
		if err != nil {
			mainLogger.Fatal("open database", "error", err)
		}
		defer store.Close()
		runs = store.Queries
	} else {
		mainLogger.Warn("no database configured, /runs is unavailable")
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: www.NewRouter(runs, logger.With().WithPrefix("http")),
	}
	go func() {
		<-ctx.Done()
		shutdown, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		srv.Shutdown(shutdown)
	}()

	mainLogger.Info("http", "url", fmt.Sprintf("http://localhost:%d", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		mainLogger.Fatal("Failed to start server", "error", err)
	}
}
