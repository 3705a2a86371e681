// Package session owns the per-deployment viewing state: the observer
// location, the simulation clock, and the display toggles. It glues the
// ephemeris store, the coordinate math, and the DOP engine into the
// per-tick queries the API and stream layers serve.
package session

import (
	"sync"
	"time"

	"github.com/star/gnssviz/internal/coords"
	"github.com/star/gnssviz/internal/dop"
	"github.com/star/gnssviz/internal/ephemeris"
)

// visibleOnlyMaskDeg is the elevation cutoff applied when "visible only"
// mode is on. Low-angle satellites are multipath-prone and visually noisy.
const visibleOnlyMaskDeg = 5.0

// Observer is a ground location in geodetic degrees, spherical Earth.
type Observer struct {
	LatDeg float64 `json:"lat_deg"`
	LonDeg float64 `json:"lon_deg"`
}

// DefaultObserver is Chicago, IL.
var DefaultObserver = Observer{LatDeg: 41.85, LonDeg: -87.65}

// ECEFUnit returns the observer's earth-fixed unit vector.
func (o Observer) ECEFUnit() [3]float64 {
	return coords.GeodeticToECEFUnit(o.LatDeg, o.LonDeg)
}

// ECEFKm returns the observer's earth-fixed position in kilometers.
func (o Observer) ECEFKm() [3]float64 {
	u := o.ECEFUnit()
	return [3]float64{
		u[0] * coords.EarthRadiusKm,
		u[1] * coords.EarthRadiusKm,
		u[2] * coords.EarthRadiusKm,
	}
}

// ScenePos returns the observer in scene units. The unit vector already sits
// on the unit-radius Earth, so only the precision downcast happens here.
func (o Observer) ScenePos() [3]float32 {
	u := o.ECEFUnit()
	return [3]float32{float32(u[0]), float32(u[1]), float32(u[2])}
}

// ScenePoint is one satellite in scene-space, ready for the rendering
// front-end: Earth radius = 1, earth-fixed frame.
type ScenePoint struct {
	NoradID       int        `json:"norad_id"`
	Name          string     `json:"name"`
	Constellation string     `json:"constellation"`
	Pos           [3]float32 `json:"pos"`
}

// Snapshot is one tick's worth of display data.
type Snapshot struct {
	SimEpoch   float64      `json:"sim_epoch"`
	Observer   [3]float32   `json:"observer"`
	Satellites []ScenePoint `json:"satellites"`
}

// SkySat is one sky-plot entry: where a satellite sits in the observer's
// sky, plus its display color.
type SkySat struct {
	Name          string  `json:"name"`
	Constellation string  `json:"constellation"`
	AzDeg         float32 `json:"az_deg"`
	ElDeg         float32 `json:"el_deg"`
	R             uint8   `json:"r"`
	G             uint8   `json:"g"`
	B             uint8   `json:"b"`
}

// Color returns the display RGB for a constellation.
func Color(c ephemeris.Constellation) [3]uint8 {
	switch c {
	case ephemeris.GPS:
		return [3]uint8{57, 255, 20}
	case ephemeris.GLONASS:
		return [3]uint8{255, 68, 68}
	case ephemeris.Galileo:
		return [3]uint8{0, 255, 204}
	case ephemeris.BeiDou:
		return [3]uint8{255, 170, 0}
	default:
		return [3]uint8{128, 128, 128}
	}
}

// frameCache memoizes the propagated earth-fixed positions for one
// (dataset, sim epoch) pair so that a tick serving positions, sky data,
// and DOP propagates the constellation once instead of three times.
type frameCache struct {
	dataset  *ephemeris.Dataset
	simEpoch float64
	ecef     []ephemeris.PositionSample
}

// Session is the explicit viewing-state object threaded through every
// query. Guarded by a mutex: HTTP handlers and the stream ticker touch it
// concurrently.
type Session struct {
	mu    sync.Mutex
	store *ephemeris.Store

	observer    Observer
	simEpoch    float64
	timeWarp    float64
	paused      bool
	visibleOnly bool
	// Indexed by constellation tag.
	constellationVisible [ephemeris.NumConstellations]bool
	// -1 = none highlighted.
	highlighted int

	frame frameCache
}

// New creates a Session over the given store with defaults: Chicago
// observer, all constellations visible, no highlight, 120x time warp,
// simulation clock seeded to wall-clock now.
func New(store *ephemeris.Store) *Session {
	s := &Session{
		store:       store,
		observer:    DefaultObserver,
		simEpoch:    float64(time.Now().UnixNano()) / 1e9,
		timeWarp:    120,
		highlighted: -1,
	}
	for i := range s.constellationVisible {
		s.constellationVisible[i] = true
	}
	return s
}

// Store returns the underlying ephemeris store.
func (s *Session) Store() *ephemeris.Store {
	return s.store
}

// SetObserver replaces the observer location wholesale.
func (s *Session) SetObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = o
}

// Observer returns the current observer location.
func (s *Session) Observer() Observer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.observer
}

// SetPaused stops or resumes the simulation clock.
func (s *Session) SetPaused(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = on
}

// SetVisibleOnly toggles the low-elevation display filter.
func (s *Session) SetVisibleOnly(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visibleOnly = on
}

// SetConstellationVisible toggles one constellation's visibility. Out of
// range tags are ignored.
func (s *Session) SetConstellationVisible(c ephemeris.Constellation, on bool) {
	if int(c) >= ephemeris.NumConstellations {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.constellationVisible[c] = on
}

// SetHighlighted selects one constellation to highlight, or -1 for none.
// Out of range values clear the highlight.
func (s *Session) SetHighlighted(idx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx < 0 || idx >= ephemeris.NumConstellations {
		s.highlighted = -1
		return
	}
	s.highlighted = idx
}

// Highlighted returns the highlighted constellation index, -1 for none.
func (s *Session) Highlighted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.highlighted
}

// SetTimeWarp sets the simulation time acceleration. Negative values
// clamp to zero.
func (s *Session) SetTimeWarp(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v < 0 {
		v = 0
	}
	s.timeWarp = v
}

// SimEpoch returns the current simulation time, Unix seconds.
func (s *Session) SimEpoch() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.simEpoch
}

// SetSimEpoch jumps the simulation clock to the given Unix timestamp.
func (s *Session) SetSimEpoch(unixS float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.simEpoch = unixS
}

// Advance moves the simulation clock forward by elapsed wall time scaled
// by the time warp, unless paused. Returns the new simulation epoch.
func (s *Session) Advance(elapsed time.Duration) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused {
		s.simEpoch += elapsed.Seconds() * s.timeWarp
	}
	return s.simEpoch
}

// frameLocked returns the dataset and its earth-fixed positions for the
// current sim epoch, propagating only when the epoch or dataset changed
// since the last call. The returned dataset is the one the positions were
// propagated from; callers must index satellites through it, not through a
// fresh store read, because a concurrent Load can swap the store's dataset
// at any point. Caller must hold s.mu.
func (s *Session) frameLocked() (*ephemeris.Dataset, []ephemeris.PositionSample) {
	ds := s.store.Dataset()
	if ds == nil {
		return nil, nil
	}
	if s.frame.dataset == ds && s.frame.simEpoch == s.simEpoch {
		return ds, s.frame.ecef
	}

	teme := ds.PropagateAll(s.simEpoch)
	gmst := coords.GMSTRad(s.simEpoch)
	ecef := make([]ephemeris.PositionSample, len(teme))
	for i, p := range teme {
		ecef[i] = ephemeris.PositionSample{
			Constellation: p.Constellation,
			PosKm:         coords.TEMEToECEF(p.PosKm, gmst),
		}
	}

	s.frame = frameCache{dataset: ds, simEpoch: s.simEpoch, ecef: ecef}
	return ds, ecef
}

// Snapshot propagates the constellation to the current sim epoch and
// returns scene-space positions, filtered by the constellation toggles and
// the visible-only mask.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	ds, ecef := s.frameLocked()
	obsKm := s.observer.ECEFKm()

	snap := Snapshot{
		SimEpoch:   s.simEpoch,
		Observer:   s.observer.ScenePos(),
		Satellites: make([]ScenePoint, 0, len(ecef)),
	}
	for i, p := range ecef {
		if !s.constellationVisible[p.Constellation] {
			continue
		}
		if s.visibleOnly {
			_, el := coords.AzEl(obsKm, p.PosKm)
			if el < visibleOnlyMaskDeg {
				continue
			}
		}
		snap.Satellites = append(snap.Satellites, ScenePoint{
			NoradID:       ds.Satellites[i].Elements.NoradID,
			Name:          ds.Satellites[i].Elements.Name,
			Constellation: p.Constellation.String(),
			Pos:           coords.KmToScene(p.PosKm),
		})
	}
	return snap
}

// SkyData returns sky-plot entries for every satellite above the horizon,
// filtered by the constellation toggles and, when visible-only mode is on,
// by the low-elevation mask.
func (s *Session) SkyData() []SkySat {
	s.mu.Lock()
	defer s.mu.Unlock()

	ds, ecef := s.frameLocked()
	obsKm := s.observer.ECEFKm()

	out := make([]SkySat, 0, len(ecef))
	for i, p := range ecef {
		if !s.constellationVisible[p.Constellation] {
			continue
		}
		az, el := coords.AzEl(obsKm, p.PosKm)
		if el < 0 {
			continue
		}
		if s.visibleOnly && el < visibleOnlyMaskDeg {
			continue
		}
		rgb := Color(p.Constellation)
		out = append(out, SkySat{
			Name:          ds.Satellites[i].Elements.Name,
			Constellation: p.Constellation.String(),
			AzDeg:         float32(az),
			ElDeg:         float32(el),
			R:             rgb[0],
			G:             rgb[1],
			B:             rgb[2],
		})
	}
	return out
}

// Settings is the mutable viewing state exposed over the API.
type Settings struct {
	Observer       Observer        `json:"observer"`
	SimEpoch       float64         `json:"sim_epoch"`
	TimeWarp       float64         `json:"time_warp"`
	Paused         bool            `json:"paused"`
	VisibleOnly    bool            `json:"visible_only"`
	Highlighted    int             `json:"highlighted"`
	Constellations map[string]bool `json:"constellations"`
}

// Settings returns a copy of the current viewing state.
func (s *Session) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	cons := make(map[string]bool, ephemeris.NumConstellations)
	for i, on := range s.constellationVisible {
		cons[ephemeris.Constellation(i).String()] = on
	}
	return Settings{
		Observer:       s.observer,
		SimEpoch:       s.simEpoch,
		TimeWarp:       s.timeWarp,
		Paused:         s.paused,
		VisibleOnly:    s.visibleOnly,
		Highlighted:    s.highlighted,
		Constellations: cons,
	}
}

// SatelliteDetail is one satellite's elements plus its geometry at the
// current sim epoch.
type SatelliteDetail struct {
	NoradID        int        `json:"norad_id"`
	Name           string     `json:"name"`
	Constellation  string     `json:"constellation"`
	EpochUnix      float64    `json:"epoch_unix"`
	MeanMotion     float64    `json:"mean_motion"`
	Eccentricity   float64    `json:"eccentricity"`
	InclinationDeg float64    `json:"inclination_deg"`
	RAANDeg        float64    `json:"raan_deg"`
	Pos            [3]float32 `json:"pos"`
	AzDeg          float64    `json:"az_deg"`
	ElDeg          float64    `json:"el_deg"`
}

// Satellite looks up one satellite by NORAD catalog id and returns its
// elements plus current scene position and az/el. The second return is
// false when the id is not in the loaded dataset.
func (s *Session) Satellite(noradID int) (SatelliteDetail, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ds, ecef := s.frameLocked()
	if ds == nil {
		return SatelliteDetail{}, false
	}
	obsKm := s.observer.ECEFKm()

	for i := range ds.Satellites {
		el := &ds.Satellites[i].Elements
		if el.NoradID != noradID {
			continue
		}
		az, elev := coords.AzEl(obsKm, ecef[i].PosKm)
		return SatelliteDetail{
			NoradID:        el.NoradID,
			Name:           el.Name,
			Constellation:  el.Constellation.String(),
			EpochUnix:      el.EpochUnix,
			MeanMotion:     el.MeanMotion,
			Eccentricity:   el.Eccentricity,
			InclinationDeg: el.InclinationDeg,
			RAANDeg:        el.RAANDeg,
			Pos:            coords.KmToScene(ecef[i].PosKm),
			AzDeg:          az,
			ElDeg:          elev,
		}, true
	}
	return SatelliteDetail{}, false
}

// DOP computes dilution-of-precision metrics at the current sim epoch for
// the constellations currently toggled on, using the given elevation mask.
func (s *Session) DOP(maskDeg float64) dop.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ecef := s.frameLocked()
	visible := make([]ephemeris.PositionSample, 0, len(ecef))
	for _, p := range ecef {
		if s.constellationVisible[p.Constellation] {
			visible = append(visible, p)
		}
	}
	return dop.Compute(visible, s.observer.ECEFKm(), maskDeg)
}
