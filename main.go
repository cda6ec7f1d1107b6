// Command trackside runs the session backend: an HTTP API accepting
// uploaded session logs and serving ingested sessions from SQLite.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gridline-data/trackside/internal/api"
	"github.com/gridline-data/trackside/internal/store"
	"github.com/gridline-data/trackside/internal/version"
)

var (
	listen  = flag.String("listen", ":8080", "Listen address")
	dbFile  = flag.String("db", "trackside.db", "Path to the SQLite database")
	migrate = flag.String("migrations", "", "Optional migrations directory to apply on startup")
)

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	st, err := store.Open(*dbFile)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer st.Close()

	if *migrate != "" {
		if err := st.MigrateUp(*migrate); err != nil {
			log.Fatalf("Failed to apply migrations: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:    *listen,
		Handler: api.LoggingMiddleware(api.NewServer(st).ServeMux()),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("trackside %s (%s) listening on %s", version.Version, version.GitSHA, *listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Println("shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("server error: %v", err)
	}
	log.Println("shutdown complete")
}
