// Command inspect prints a quick summary of a session log file: record
// count, time span, and the first and last samples.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"

	"github.com/gridline-data/trackside/internal/sessionlog"
	"github.com/gridline-data/trackside/internal/telemetry"
)

var file = flag.String("file", "", "Session log to inspect (.jsonl.gz)")

func main() {
	flag.Parse()
	if *file == "" {
		log.Fatal("-file is required")
	}

	r, err := sessionlog.Open(*file)
	if err != nil {
		log.Fatalf("Failed to open %s: %v", *file, err)
	}
	defer r.Close()

	var (
		count       int
		first, last []byte
	)
	for {
		line, ok := r.Next()
		if !ok {
			break
		}
		if count == 0 {
			first = append([]byte(nil), line...)
		}
		last = append([]byte(nil), line...)
		count++
	}
	if err := r.Err(); err != nil {
		log.Fatalf("Failed to read %s: %v", *file, err)
	}

	fmt.Printf("file: %s\n", *file)
	fmt.Printf("records: %d\n", count)
	if count == 0 {
		return
	}

	var firstSample, lastSample telemetry.Sample
	if err := json.Unmarshal(first, &firstSample); err == nil {
		if err := json.Unmarshal(last, &lastSample); err == nil {
			fmt.Printf("span: %.1fs (ts %.3f .. %.3f)\n",
				lastSample.TS-firstSample.TS, firstSample.TS, lastSample.TS)
		}
	}
	fmt.Printf("first: %s\n", first)
	fmt.Printf("last:  %s\n", last)
}
