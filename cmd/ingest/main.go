// Command ingest replays a session log file into the SQLite store and
// prints the ingestion summary.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/google/uuid"

	"github.com/gridline-data/trackside/internal/ingest"
	"github.com/gridline-data/trackside/internal/store"
)

var (
	dbFile   = flag.String("db", "trackside.db", "Path to the SQLite database")
	file     = flag.String("file", "", "Session log to ingest (.jsonl.gz)")
	driver   = flag.String("driver", "", "Driver name")
	carName  = flag.String("car", "", "Car (inferred from the log when empty)")
	trkName  = flag.String("track", "", "Track (inferred from the log when empty)")
	duration = flag.Float64("duration", 0, "Session duration in seconds (inferred when 0)")
	batch    = flag.Int("batch", ingest.DefaultBatchSize, "Records per commit batch")
)

func main() {
	flag.Parse()
	if *file == "" {
		log.Fatal("-file is required")
	}

	st, err := store.Open(*dbFile)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	sessionID := uuid.NewString()
	meta := ingest.Metadata{
		DriverName: *driver,
		Car:        *carName,
		Track:      *trkName,
		DurationS:  *duration,
	}
	if err := st.CreateSession(ctx, store.Session{
		ID:         sessionID,
		DriverName: meta.DriverName,
		Car:        meta.Car,
		Track:      meta.Track,
		DurationS:  meta.DurationS,
	}); err != nil {
		log.Fatalf("Failed to create session: %v", err)
	}

	pipeline := ingest.New(st, ingest.WithBatchSize(*batch))
	summary, err := pipeline.IngestFile(ctx, *file, sessionID, meta)
	if err != nil {
		log.Fatalf("Ingest failed: %v", err)
	}

	final := summary.Metadata
	if err := st.UpdateSessionMetadata(ctx, sessionID, final.DriverName, final.Car, final.Track, final.DurationS); err != nil {
		log.Printf("failed to update session metadata: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		log.Fatalf("Failed to print summary: %v", err)
	}
}
