// diag is an offline check: load an OMM JSON file, propagate every
// satellite to a target time, and print a sky table plus DOP for an
// observer. No network, no server.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/star/gnssviz/internal/ephemeris"
	"github.com/star/gnssviz/internal/session"
)

func main() {
	var (
		file = flag.String("file", "", "OMM JSON file to load (required)")
		lat  = flag.Float64("lat", session.DefaultObserver.LatDeg, "observer latitude, degrees")
		lon  = flag.Float64("lon", session.DefaultObserver.LonDeg, "observer longitude, degrees")
		at   = flag.Float64("at", float64(time.Now().Unix()), "target time, Unix seconds")
		mask = flag.Float64("mask", 5, "elevation mask for DOP, degrees")
	)
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: diag -file feed.json [-lat .. -lon .. -at .. -mask ..]")
		os.Exit(2)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	data, err := os.ReadFile(*file)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR reading feed:", err)
		os.Exit(1)
	}

	store := ephemeris.NewStore(logger)
	n, err := store.Load(data)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR loading feed:", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d satellites\n", n)

	sess := session.New(store)
	sess.SetObserver(session.Observer{LatDeg: *lat, LonDeg: *lon})
	sess.SetSimEpoch(*at)

	fmt.Printf("Observer %.4f°, %.4f°  t=%s\n\n", *lat, *lon,
		time.Unix(int64(*at), 0).UTC().Format(time.RFC3339))

	sky := sess.SkyData()
	fmt.Printf("%-24s %-8s %8s %8s\n", "NAME", "CONST", "AZ", "EL")
	for _, s := range sky {
		fmt.Printf("%-24s %-8s %7.1f° %7.1f°\n", s.Name, s.Constellation, s.AzDeg, s.ElDeg)
	}
	fmt.Printf("\n%d above horizon\n\n", len(sky))

	r := sess.DOP(*mask)
	if !r.Available() {
		fmt.Printf("DOP unavailable (mask %.1f°, %d usable)\n", *mask, r.NumSats)
		return
	}
	fmt.Printf("DOP (mask %.1f°, %d sats): GDOP=%.2f PDOP=%.2f HDOP=%.2f VDOP=%.2f TDOP=%.2f\n",
		*mask, r.NumSats, r.GDOP, r.PDOP, r.HDOP, r.VDOP, r.TDOP)
}
