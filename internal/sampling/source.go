// internal/sampling/source.go
package sampling

import (
	"math/rand/v2"
	"sync"

	"device-console/internal/protocol/frame"
)

const (
	KindSynthetic = "synthetic"
	KindFrames    = "frames"

	defaultSyntheticChannels = 4
	syntheticModulus         = 255
)

// Sample is one value for one channel
type Sample struct {
	Channel int
	Value   float64
}

// Source yields the values ingested on each sample trigger
type Source interface {
	Name() string
	Sample() []Sample
}

// Observer is implemented by sources fed from decoded device commands
type Observer interface {
	Observe(cmd frame.Command)
}

// Config selects and parameterizes a source
type Config struct {
	Kind     string
	Channels int
	SampleOp byte
}

// Synthetic produces pseudo-random values in [0, 255) for a fixed set of channels.
// It stands in for a device while the plot path is exercised.
type Synthetic struct {
	channels int
	rng      *rand.Rand
}

// NewSynthetic creates a generator. A nil rng uses a randomly seeded PCG.
func NewSynthetic(channels int, rng *rand.Rand) *Synthetic {
	if channels <= 0 {
		channels = defaultSyntheticChannels
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Synthetic{channels: channels, rng: rng}
}

func (s *Synthetic) Name() string { return KindSynthetic }

// Sample returns one value per channel, channel ids 0..n-1
func (s *Synthetic) Sample() []Sample {
	out := make([]Sample, s.channels)
	for i := range out {
		out[i] = Sample{Channel: i, Value: float64(s.rng.IntN(syntheticModulus))}
	}
	return out
}

// FrameSource turns device replies into samples. A command with the configured op
// carries the value for channel Target as a big-endian unsigned payload. Only channels
// updated since the previous Sample are returned.
type FrameSource struct {
	op byte

	mutex  sync.Mutex
	latest map[int]float64
	order  []int
}

// NewFrameSource creates a source listening for op. Zero means frame.OpRead.
func NewFrameSource(op byte) *FrameSource {
	if op == 0 {
		op = frame.OpRead
	}
	return &FrameSource{op: op, latest: make(map[int]float64)}
}

func (f *FrameSource) Name() string { return KindFrames }

// Observe records the value carried by cmd if it is a sample reply
func (f *FrameSource) Observe(cmd frame.Command) {
	if cmd.Op != f.op || len(cmd.Payload) == 0 {
		return
	}

	id := int(cmd.Target)
	value := float64(PayloadValue(cmd.Payload))

	f.mutex.Lock()
	defer f.mutex.Unlock()
	if _, pending := f.latest[id]; !pending {
		f.order = append(f.order, id)
	}
	f.latest[id] = value
}

// Sample drains the pending values in the order their channels were first updated
func (f *FrameSource) Sample() []Sample {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if len(f.order) == 0 {
		return nil
	}
	out := make([]Sample, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, Sample{Channel: id, Value: f.latest[id]})
	}
	clear(f.latest)
	f.order = f.order[:0]
	return out
}

// PayloadValue reads up to the last 8 bytes of p as a big-endian unsigned integer
func PayloadValue(p []byte) uint64 {
	if len(p) > 8 {
		p = p[len(p)-8:]
	}
	var v uint64
	for _, b := range p {
		v = v<<8 | uint64(b)
	}
	return v
}
