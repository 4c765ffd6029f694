package main

import (
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/outletpos/syncengine/internal/devserver"
	"github.com/outletpos/syncengine/internal/logging"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8080", "listen address")
	flag.Parse()

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	srv := devserver.NewServer(logger)

	// The client defaults to a base URL ending in /api.
	root := chi.NewRouter()
	root.Mount("/api", srv.Routes())

	log.Printf("dev server listening on %s", *addr)
	if err := http.ListenAndServe(*addr, root); err != nil {
		log.Fatalf("%v", err)
	}
}
