// rangecheck prints live distance readings from the ranging sensor. Useful
// for verifying wiring and mounting before handing the port over to the
// safety daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JanNoszczyk/Freenove-Tank-Robot-Kit-for-Raspberry-Pi/internal/rangefinder"
	"github.com/JanNoszczyk/Freenove-Tank-Robot-Kit-for-Raspberry-Pi/internal/serialport"
)

var (
	portPath = flag.String("port", "/dev/ttyAMA0", "Serial device path")
	baud     = flag.Int("baud", 115200, "Baud rate")
	interval = flag.Duration("interval", 250*time.Millisecond, "Print interval")
)

func main() {
	flag.Parse()

	reader := rangefinder.NewReader(rangefinder.ReaderConfig{
		PortPath:    *portPath,
		PortOptions: serialport.Options{BaudRate: *baud},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := reader.Run(ctx); err != nil && ctx.Err() == nil {
			log.Fatalf("sensor reader stopped: %v", err)
		}
	}()

	fmt.Fprintf(os.Stderr, "reading %s at %d baud (ctrl-c to exit)\n", *portPath, *baud)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			return
		case <-ticker.C:
			sample, ok := reader.Latest()
			if !ok {
				fmt.Println("distance: --- (no valid reading)")
				continue
			}
			age := time.Since(sample.CapturedAt).Round(time.Millisecond)
			fmt.Printf("distance: %6.1f cm  (age %s)\n", sample.DistanceCm, age)
		}
	}
}
