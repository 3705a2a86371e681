// Package ephemeris owns the currently loaded satellite element sets: it
// parses the OMM JSON feed, classifies each satellite by constellation,
// builds the per-satellite propagator state, and answers "propagate everyone
// to time T".
package ephemeris

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/star/gnssviz/internal/metrics"
	"github.com/star/gnssviz/internal/propagation"
)

// Satellite pairs an element set with its cached propagator state.
type Satellite struct {
	Elements ElementSet
	state    *propagation.State
}

// Store provides access to the current ephemeris dataset. A fresh load fully
// replaces the dataset; readers always see either the old set or the new one,
// never a partial mix.
type Store struct {
	dataset atomic.Pointer[Dataset]
	logger  *slog.Logger
}

// NewStore creates an empty Store.
func NewStore(logger *slog.Logger) *Store {
	return &Store{logger: logger}
}

// Load parses an OMM JSON batch and replaces the current dataset wholesale.
// It returns the number of satellites admitted. A malformed top-level batch
// fails the whole load and leaves the previous dataset in place; individual
// bad records (unparseable epoch, degenerate elements) are skipped with a
// warning and counted.
func (s *Store) Load(data []byte) (int, error) {
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return 0, fmt.Errorf("parsing ephemeris batch: %w", err)
	}

	sats := make([]Satellite, 0, len(records))
	var skippedEpoch, skippedElements int

	for _, rec := range records {
		year2, doy, epochUnix, err := ParseEpoch(rec.Epoch)
		if err != nil {
			skippedEpoch++
			metrics.IncEphemerisSkipped("epoch")
			s.logger.Warn("skipping record with unparseable epoch",
				"norad_id", rec.NoradCatID, "name", rec.ObjectName, "epoch", rec.Epoch, "error", err)
			continue
		}

		state, err := propagation.NewState(propagation.Elements{
			NoradID:        rec.NoradCatID,
			EpochUnix:      epochUnix,
			EpochYear:      fullYear(year2),
			EpochDOY:       doy,
			MeanMotion:     rec.MeanMotion,
			Eccentricity:   rec.Eccentricity,
			InclinationDeg: rec.Inclination,
			RAANDeg:        rec.RAOfAscNode,
			ArgPerigeeDeg:  rec.ArgOfPericenter,
			MeanAnomalyDeg: rec.MeanAnomaly,
			Bstar:          rec.Bstar,
			MeanMotionDot:  rec.MeanMotionDot,
			MeanMotionDDot: rec.MeanMotionDDot,
		})
		if err != nil {
			skippedElements++
			metrics.IncEphemerisSkipped("elements")
			s.logger.Warn("skipping record with degenerate elements",
				"norad_id", rec.NoradCatID, "name", rec.ObjectName, "error", err)
			continue
		}

		sats = append(sats, Satellite{
			Elements: ElementSet{
				NoradID:        rec.NoradCatID,
				Name:           rec.ObjectName,
				Constellation:  Classify(rec.ObjectName),
				EpochUnix:      epochUnix,
				EpochYear2:     year2,
				EpochDOY:       doy,
				MeanMotion:     rec.MeanMotion,
				Eccentricity:   rec.Eccentricity,
				InclinationDeg: rec.Inclination,
				RAANDeg:        rec.RAOfAscNode,
				ArgPerigeeDeg:  rec.ArgOfPericenter,
				MeanAnomalyDeg: rec.MeanAnomaly,
				Bstar:          rec.Bstar,
				MeanMotionDot:  rec.MeanMotionDot,
				MeanMotionDDot: rec.MeanMotionDDot,
			},
			state: state,
		})
	}

	s.dataset.Store(&Dataset{LoadedAt: time.Now(), Satellites: sats})
	metrics.SetEphemerisCount(len(sats))

	s.logger.Info("ephemeris loaded",
		"accepted", len(sats),
		"skipped_epoch", skippedEpoch,
		"skipped_elements", skippedElements,
	)
	return len(sats), nil
}

// Dataset returns the current dataset, or nil if none has been loaded.
func (s *Store) Dataset() *Dataset {
	return s.dataset.Load()
}

// Len returns the number of satellites in the current dataset.
func (s *Store) Len() int {
	ds := s.dataset.Load()
	if ds == nil {
		return 0
	}
	return len(ds.Satellites)
}

// AgeSeconds returns the age of the current dataset, or -1 if none is loaded.
func (s *Store) AgeSeconds() float64 {
	ds := s.dataset.Load()
	if ds == nil {
		return -1
	}
	return time.Since(ds.LoadedAt).Seconds()
}

// PropagateAll propagates every satellite in the current dataset to the given
// Unix timestamp. Results are in load order, one per satellite, TEME km.
// Returns nil if no dataset is loaded.
func (s *Store) PropagateAll(unixS float64) []PositionSample {
	ds := s.dataset.Load()
	if ds == nil {
		return nil
	}
	return ds.PropagateAll(unixS)
}

// PropagateAll propagates every satellite in this dataset to the given Unix
// timestamp, falling back per satellite to the circular Keplerian model when
// SGP4 fails for that target time.
func (d *Dataset) PropagateAll(unixS float64) []PositionSample {
	start := time.Now()
	out := make([]PositionSample, len(d.Satellites))
	var fallbacks int

	for i := range d.Satellites {
		pos, usedFallback := d.Satellites[i].state.Position(unixS)
		if usedFallback {
			fallbacks++
		}
		out[i] = PositionSample{
			Constellation: d.Satellites[i].Elements.Constellation,
			PosKm:         pos,
		}
	}

	metrics.RecordPropagation(time.Since(start), fallbacks)
	return out
}

// fullYear resolves a 2-digit year using the TLE convention: 57-99 → 1900s,
// 00-56 → 2000s.
func fullYear(year2 int) int {
	if year2 >= 57 {
		return 1900 + year2
	}
	return 2000 + year2
}
