package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppMetrics_Counters(t *testing.T) {
	reg := NewRegistry()
	m := NewAppMetrics(reg)

	m.ObserveReceived(12)
	m.ObserveSent(5)
	m.ObserveDecoded("35")
	m.ObserveDecoded("35")
	m.ObserveResync("bad_start", 3)
	m.ObserveResync("bad_start", 0)
	m.ObservePushed()
	m.ObserveMailboxDrop()
	m.ObserveTrigger("render")
	m.SetRunning(true)
	m.SetChannels(4)

	assert.Equal(t, float64(12), testutil.ToFloat64(m.BytesReceived))
	assert.Equal(t, float64(5), testutil.ToFloat64(m.BytesSent))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.FramesDecoded.WithLabelValues("35")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.DecodeErrors.WithLabelValues("bad_start")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CommandsPushed))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.MailboxDrops))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TriggerFires.WithLabelValues("render")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SchedulerState))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.Channels))
}

func TestAppMetrics_NilIsNoop(t *testing.T) {
	var m *AppMetrics
	assert.NotPanics(t, func() {
		m.ObserveReceived(1)
		m.ObserveDecoded("1")
		m.ObserveTrigger("poll")
		m.SetRunning(false)
	})
}

func TestHandler_ExposesMetrics(t *testing.T) {
	reg := NewRegistry()
	m := NewAppMetrics(reg)
	m.ObservePushed()

	rr := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "console_commands_pushed_total 1"))
}
