package sampling

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"device-console/internal/protocol/frame"
)

func TestSynthetic(t *testing.T) {
	s := NewSynthetic(0, rand.New(rand.NewPCG(1, 2)))
	assert.Equal(t, KindSynthetic, s.Name())

	for round := 0; round < 50; round++ {
		samples := s.Sample()
		require.Len(t, samples, 4)
		for i, sample := range samples {
			assert.Equal(t, i, sample.Channel)
			assert.GreaterOrEqual(t, sample.Value, 0.0)
			assert.Less(t, sample.Value, 255.0)
		}
	}
}

func TestSynthetic_Deterministic(t *testing.T) {
	a := NewSynthetic(3, rand.New(rand.NewPCG(7, 7)))
	b := NewSynthetic(3, rand.New(rand.NewPCG(7, 7)))
	assert.Equal(t, a.Sample(), b.Sample())
}

func TestFrameSource(t *testing.T) {
	f := NewFrameSource(0)
	assert.Equal(t, KindFrames, f.Name())
	assert.Nil(t, f.Sample())

	f.Observe(frame.Command{Op: frame.OpRead, Target: 2, Payload: []byte{0x01, 0x02}})
	f.Observe(frame.Command{Op: frame.OpRead, Target: 0, Payload: []byte{7}})
	f.Observe(frame.Command{Op: frame.OpRead, Target: 2, Payload: []byte{9}})
	// ignored: other op, empty payload
	f.Observe(frame.Command{Op: frame.OpWrite, Target: 1, Payload: []byte{1}})
	f.Observe(frame.Command{Op: frame.OpRead, Target: 3})

	assert.Equal(t, []Sample{{Channel: 2, Value: 9}, {Channel: 0, Value: 7}}, f.Sample())
	assert.Nil(t, f.Sample())
}

func TestFrameSource_CustomOp(t *testing.T) {
	f := NewFrameSource(0x50)
	f.Observe(frame.Command{Op: frame.OpRead, Target: 1, Payload: []byte{1}})
	f.Observe(frame.Command{Op: 0x50, Target: 1, Payload: []byte{0x12, 0x34}})
	assert.Equal(t, []Sample{{Channel: 1, Value: 0x1234}}, f.Sample())
}

func TestPayloadValue(t *testing.T) {
	assert.Equal(t, uint64(0), PayloadValue(nil))
	assert.Equal(t, uint64(0xFF), PayloadValue([]byte{0xFF}))
	assert.Equal(t, uint64(0x0102), PayloadValue([]byte{0x01, 0x02}))
	assert.Equal(t, uint64(0x0203040506070809), PayloadValue([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9}))
}

func TestPollPolicy_Default(t *testing.T) {
	p, err := NewPollPolicy(nil)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{0x3C, 0x21, 0x00, 0x00, 0x1D}}, p.Frames())
}

func TestPollPolicy_Configured(t *testing.T) {
	p, err := NewPollPolicy([]Request{
		{Op: frame.OpRead, Target: 0},
		{Op: frame.OpWrite, Target: 0, Payload: []byte{1}},
	})
	require.NoError(t, err)
	require.Len(t, p.Frames(), 2)
	assert.Equal(t, []byte{0x3C, 0x22, 0x00, 0x01, 0x01, 0x1E}, p.Frames()[1])
}

func TestPollPolicy_PayloadTooLarge(t *testing.T) {
	_, err := NewPollPolicy([]Request{{Op: 1, Payload: make([]byte, 256)}})
	assert.ErrorIs(t, err, frame.ErrPayloadTooLarge)
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry(zap.NewNop())
	assert.Equal(t, []string{KindFrames, KindSynthetic}, r.Kinds())
	assert.True(t, r.IsSupported(KindFrames))
	assert.False(t, r.IsSupported("adc"))

	src, err := r.Create(Config{})
	require.NoError(t, err)
	assert.Equal(t, KindSynthetic, src.Name())

	src, err = r.Create(Config{Kind: KindFrames})
	require.NoError(t, err)
	_, ok := src.(Observer)
	assert.True(t, ok)

	_, err = r.Create(Config{Kind: "adc"})
	assert.ErrorIs(t, err, ErrUnknownSource)
}
