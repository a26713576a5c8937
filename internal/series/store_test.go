package series

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindow_Lengths(t *testing.T) {
	const w = DefaultWindow

	for _, n := range []int{0, 1, w - 1, w, w + 1, 10 * w} {
		s := NewStore("")
		if n == 0 {
			points, err := s.Window(7, w)
			assert.ErrorIs(t, err, ErrUnknownChannel)
			assert.Empty(t, points)
			continue
		}

		for i := 0; i < n; i++ {
			s.Ingest(7, float64(i*3))
		}

		points, err := s.Window(7, w)
		require.NoError(t, err)

		want := n
		if want > w {
			want = w
		}
		require.Len(t, points, want, "n=%d", n)

		first := n - want
		for i, p := range points {
			assert.Equal(t, float64(first+i), p.X, "n=%d i=%d", n, i)
			assert.Equal(t, float64((first+i)*3), p.Y, "n=%d i=%d", n, i)
		}
	}
}

func TestWindow_IsNotDestructive(t *testing.T) {
	s := NewStore("")
	for i := 0; i < 50; i++ {
		s.Ingest(0, float64(i))
	}

	small, err := s.Window(0, 10)
	require.NoError(t, err)
	assert.Len(t, small, 10)

	all, err := s.Window(0, 1000)
	require.NoError(t, err)
	assert.Len(t, all, 50)

	n, err := s.Len(0)
	require.NoError(t, err)
	assert.Equal(t, 50, n)
}

func TestWindow_ReturnsCopy(t *testing.T) {
	s := NewStore("")
	s.Ingest(1, 5)

	points, err := s.Window(1, 10)
	require.NoError(t, err)
	points[0].Y = 99

	again, err := s.Window(1, 10)
	require.NoError(t, err)
	assert.Equal(t, float64(5), again[0].Y)
}

func TestRegistry_FirstSeenOrder(t *testing.T) {
	s := NewStore("")
	s.Ingest(2, 1)
	s.Ingest(0, 1)
	s.Ingest(1, 1)
	s.Ingest(2, 1)

	channels := s.Channels()
	require.Len(t, channels, 3)
	assert.Equal(t, []int{2, 0, 1}, []int{channels[0].ID, channels[1].ID, channels[2].ID})
	assert.Equal(t, "line 2", channels[0].Label)
	assert.True(t, channels[0].Visible)
}

func TestRegistry_Edits(t *testing.T) {
	s := NewStore("ch%d")
	s.Ingest(3, 1)

	require.NoError(t, s.Rename(3, "temperature"))
	require.NoError(t, s.SetVisible(3, false))

	ch, err := s.Channel(3)
	require.NoError(t, err)
	assert.Equal(t, Channel{ID: 3, Label: "temperature", Visible: false}, ch)
}

func TestRegistry_UnknownChannel(t *testing.T) {
	s := NewStore("")
	s.Ingest(0, 1)

	assert.ErrorIs(t, s.Rename(4, "x"), ErrUnknownChannel)
	assert.ErrorIs(t, s.SetVisible(4, false), ErrUnknownChannel)
	_, err := s.Channel(4)
	assert.ErrorIs(t, err, ErrUnknownChannel)

	assert.Len(t, s.Channels(), 1)
}

func TestIngestAt_Monotonic(t *testing.T) {
	s := NewStore("")
	require.NoError(t, s.IngestAt(0, 10, 1))
	require.NoError(t, s.IngestAt(0, 10, 2))
	assert.ErrorIs(t, s.IngestAt(0, 9, 3), ErrNonMonotonic)

	s.Ingest(0, 4)
	points, err := s.Window(0, 10)
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, float64(11), points[2].X)
}

func TestSnapshot_HiddenChannelsCarryNoPoints(t *testing.T) {
	s := NewStore("")
	for i := 0; i < 20; i++ {
		s.Ingest(1, float64(i))
		s.Ingest(0, float64(-i))
	}
	require.NoError(t, s.SetVisible(0, false))

	snap := s.Snapshot(10)
	assert.Equal(t, 10, snap.Window)
	require.Len(t, snap.Series, 2)

	assert.Equal(t, 1, snap.Series[0].ID)
	assert.Len(t, snap.Series[0].Points, 10)
	assert.Equal(t, 20, snap.Series[0].Total)

	assert.Equal(t, 0, snap.Series[1].ID)
	assert.False(t, snap.Series[1].Visible)
	assert.Empty(t, snap.Series[1].Points)
}

func TestReset(t *testing.T) {
	s := NewStore("")
	s.Ingest(0, 1)
	s.Reset()

	assert.Empty(t, s.Channels())
	_, err := s.Window(0, 10)
	assert.ErrorIs(t, err, ErrUnknownChannel)
}

func TestNormalizeWindow(t *testing.T) {
	for _, w := range []int{MinWindow, DefaultWindow, MaxWindow} {
		got, err := NormalizeWindow(w)
		require.NoError(t, err)
		assert.Equal(t, w, got)
	}
	for _, w := range []int{0, MinWindow - 1, MaxWindow + 1, -5} {
		_, err := NormalizeWindow(w)
		assert.ErrorIs(t, err, ErrWindowOutOfRange, "w=%d", w)
	}
}
