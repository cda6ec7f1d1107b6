// Command simulate runs the telemetry simulator standalone, emitting
// UDP samples at a fixed tick rate until interrupted or the duration
// elapses.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/gridline-data/trackside/internal/car"
	"github.com/gridline-data/trackside/internal/sim"
	"github.com/gridline-data/trackside/internal/track"
	"github.com/gridline-data/trackside/internal/transport"
)

var (
	target   = flag.String("target", "127.0.0.1:9996", "UDP destination for telemetry samples")
	rateHz   = flag.Float64("rate", sim.DefaultRateHz, "Tick frequency in Hz")
	seed     = flag.Int64("seed", 0, "Random seed (0 seeds from the clock)")
	duration = flag.Duration("duration", 0, "How long to run (0 runs until interrupted)")
)

func main() {
	flag.Parse()

	sender, err := transport.NewSender(*target)
	if err != nil {
		log.Fatalf("Failed to dial %s: %v", *target, err)
	}
	defer sender.Close()

	engine, err := sim.New(sim.Config{
		Track:   track.Monza(),
		Car:     car.PorscheGT3RS(),
		RateHz:  *rateHz,
		Seed:    *seed,
		Emitter: sender,
	})
	if err != nil {
		log.Fatalf("Failed to create simulator: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	log.Printf("simulating at %.0f Hz -> %s", *rateHz, *target)
	if err := engine.Run(ctx); err != nil && err != context.Canceled && err != context.DeadlineExceeded {
		log.Fatalf("simulator error: %v", err)
	}
	log.Println("simulator stopped")
}
