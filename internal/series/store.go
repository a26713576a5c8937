// internal/series/store.go
package series

import (
	"errors"
	"fmt"
	"sync"
)

// Window bounds accepted from the operator
const (
	DefaultWindow = 100
	MinWindow     = 10
	MaxWindow     = 10000
)

var (
	ErrUnknownChannel   = errors.New("unknown channel")
	ErrWindowOutOfRange = errors.New("window size out of range")
	ErrNonMonotonic     = errors.New("x must not decrease")
)

// Point is one sample
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Channel is a registry entry
type Channel struct {
	ID      int    `json:"id"`
	Label   string `json:"label"`
	Visible bool   `json:"visible"`
}

// Series is a channel together with its current window
type Series struct {
	Channel
	Points []Point `json:"points,omitempty"`
	Total  int     `json:"total"`
}

// Snapshot is everything a renderer needs for one redraw
type Snapshot struct {
	Window int      `json:"window"`
	Series []Series `json:"series"`
}

type entry struct {
	Channel
	points []Point
}

// Store holds one append-only buffer per channel plus the channel registry.
// A single RWMutex covers ingest, window reads and registry edits.
type Store struct {
	mutex    sync.RWMutex
	order    []int
	channels map[int]*entry
	labelFmt string
}

// NewStore creates an empty store. labelFormat must contain one %d verb; empty means "line %d".
func NewStore(labelFormat string) *Store {
	if labelFormat == "" {
		labelFormat = "line %d"
	}
	return &Store{
		channels: make(map[int]*entry),
		labelFmt: labelFormat,
	}
}

// NormalizeWindow validates an operator supplied window size
func NormalizeWindow(w int) (int, error) {
	if w < MinWindow || w > MaxWindow {
		return 0, fmt.Errorf("%w: %d not in [%d, %d]", ErrWindowOutOfRange, w, MinWindow, MaxWindow)
	}
	return w, nil
}

// lookup returns the entry for id, creating it on first sight. Caller holds the write lock.
func (s *Store) lookup(id int) *entry {
	e, ok := s.channels[id]
	if !ok {
		e = &entry{Channel: Channel{
			ID:      id,
			Label:   fmt.Sprintf(s.labelFmt, id),
			Visible: true,
		}}
		s.channels[id] = e
		s.order = append(s.order, id)
	}
	return e
}

// Ingest appends value at x = current length of the channel buffer
func (s *Store) Ingest(id int, value float64) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	e := s.lookup(id)
	x := float64(len(e.points))
	if n := len(e.points); n > 0 && e.points[n-1].X >= x {
		// earlier device timestamps moved x ahead of the length; keep x increasing
		x = e.points[n-1].X + 1
	}
	e.points = append(e.points, Point{X: x, Y: value})
}

// IngestAt appends a sample with an externally supplied x, e.g. a device timestamp
func (s *Store) IngestAt(id int, x, value float64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	e := s.lookup(id)
	if n := len(e.points); n > 0 && x < e.points[n-1].X {
		return fmt.Errorf("%w: channel %d x=%v after %v", ErrNonMonotonic, id, x, e.points[n-1].X)
	}
	e.points = append(e.points, Point{X: x, Y: value})
	return nil
}

// Window returns a copy of the last w points of a channel, oldest first
func (s *Store) Window(id, w int) ([]Point, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	e, ok := s.channels[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownChannel, id)
	}
	return tail(e.points, w), nil
}

func tail(points []Point, w int) []Point {
	if w < 0 {
		w = 0
	}
	start := len(points) - w
	if start < 0 {
		start = 0
	}
	out := make([]Point, len(points)-start)
	copy(out, points[start:])
	return out
}

// Len returns the number of samples stored for a channel
func (s *Store) Len(id int) (int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	e, ok := s.channels[id]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownChannel, id)
	}
	return len(e.points), nil
}

// SetVisible toggles a channel's visibility
func (s *Store) SetVisible(id int, visible bool) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	e, ok := s.channels[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownChannel, id)
	}
	e.Visible = visible
	return nil
}

// Rename changes a channel's display label
func (s *Store) Rename(id int, label string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	e, ok := s.channels[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownChannel, id)
	}
	e.Label = label
	return nil
}

// Channel returns one registry entry
func (s *Store) Channel(id int) (Channel, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	e, ok := s.channels[id]
	if !ok {
		return Channel{}, fmt.Errorf("%w: %d", ErrUnknownChannel, id)
	}
	return e.Channel, nil
}

// Channels lists the registry in first-seen order
func (s *Store) Channels() []Channel {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make([]Channel, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.channels[id].Channel)
	}
	return out
}

// Snapshot returns every channel in registry order with the window of each visible one.
// The whole snapshot is taken under one read lock.
func (s *Store) Snapshot(w int) Snapshot {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	snap := Snapshot{Window: w, Series: make([]Series, 0, len(s.order))}
	for _, id := range s.order {
		e := s.channels[id]
		item := Series{Channel: e.Channel, Total: len(e.points)}
		if e.Visible {
			item.Points = tail(e.points, w)
		}
		snap.Series = append(snap.Series, item)
	}
	return snap
}

// Reset drops every channel and its samples
func (s *Store) Reset() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.order = nil
	s.channels = make(map[int]*entry)
}
