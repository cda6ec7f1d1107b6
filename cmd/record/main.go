// Command record binds a UDP endpoint and appends every received
// telemetry sample to a gzip session log via the bounded hand-off
// queue. Stop it with Ctrl-C; the log is finalised on shutdown.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gridline-data/trackside/internal/queue"
	"github.com/gridline-data/trackside/internal/sessionlog"
	"github.com/gridline-data/trackside/internal/telemetry"
	"github.com/gridline-data/trackside/internal/transport"
)

var (
	listen    = flag.String("listen", ":9996", "UDP listen address")
	out       = flag.String("out", "", "Output path (defaults to session_<timestamp>.jsonl.gz)")
	queueSize = flag.Int("queue", 1024, "Hand-off queue capacity")
)

func main() {
	flag.Parse()

	path := *out
	if path == "" {
		path = time.Now().Format("session_20060102_150405") + sessionlog.FileExtension
	}
	writer, err := sessionlog.Create(path)
	if err != nil {
		log.Fatalf("Failed to create session log: %v", err)
	}

	q := queue.NewBounded[telemetry.Sample](*queueSize)
	receiver := transport.NewReceiver(transport.ReceiverConfig{
		Address: *listen,
		Queue:   q,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return receiver.Run(ctx)
	})
	g.Go(func() error {
		for {
			sample, ok := q.Pop(ctx)
			if !ok {
				return nil
			}
			if err := writer.Write(sample); err != nil {
				return err
			}
		}
	})

	if err := g.Wait(); err != nil {
		log.Printf("recorder error: %v", err)
	}
	receiver.Stop()

	// Drain anything still queued before finalising the log.
	for {
		sample, ok := q.PopTimeout(10 * time.Millisecond)
		if !ok {
			break
		}
		if err := writer.Write(sample); err != nil {
			log.Printf("failed to write sample during drain: %v", err)
			break
		}
	}
	if err := writer.Close(); err != nil {
		log.Fatalf("Failed to finalise session log: %v", err)
	}
	log.Printf("recorded %d samples to %s (dropped %d, malformed %d)",
		writer.Lines(), path, receiver.Dropped(), receiver.Malformed())
}
