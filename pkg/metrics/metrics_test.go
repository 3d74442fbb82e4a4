package metrics

import (
	"testing"
	"time"
)

func TestCounters(t *testing.T) {
	m := NewMetrics()
	m.IncCounter("a")
	m.AddCounter("a", 4)

	if got := m.GetCounter("a"); got != 5 {
		t.Errorf("counter a = %d, want 5", got)
	}

	m.Disable()
	m.IncCounter("a")
	if got := m.GetCounter("a"); got != 5 {
		t.Errorf("disabled metrics still counted: %d", got)
	}
}

func TestNilMetricsIsInert(t *testing.T) {
	var m *Metrics
	m.IncCounter("x")
	m.RecordCommandStart("ping")
	m.RecordQueueEvent("enqueue", 3)
	if m.GetCounter("x") != 0 {
		t.Error("nil metrics returned a count")
	}
	if m.CommandCounts() != nil {
		t.Error("nil metrics returned command counts")
	}
}

func TestCommandCounts(t *testing.T) {
	m := NewMetrics()
	for _, name := range []string{"ping", "play", "ping", "about", "ping"} {
		m.RecordCommandStart(name)
	}
	m.RecordCommandExecution("ping", true, time.Millisecond)

	got := m.CommandCounts()
	want := []CommandCount{{"about", 1}, {"ping", 3}, {"play", 1}}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestHistogramStats(t *testing.T) {
	m := NewMetrics()
	for _, v := range []float64{4, 1, 7} {
		m.AddToHistogram("h", v)
	}

	stats := m.GetHistogramStats("h")
	if stats == nil {
		t.Fatal("missing stats")
	}
	if stats.Count != 3 || stats.Sum != 12 || stats.Min != 1 || stats.Max != 7 || stats.Mean != 4 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if m.GetHistogramStats("missing") != nil {
		t.Error("unknown histogram should be nil")
	}
}

func TestCollectorSamplesSources(t *testing.T) {
	m := NewMetrics()
	c := NewMonitoringCollector(m, time.Hour)
	c.Track("sessions_active", func() float64 { return 2 })

	c.Collect()

	if got := m.GetGauge("sessions_active"); got != 2 {
		t.Errorf("sessions_active = %v, want 2", got)
	}
	if m.GetGauge("system_goroutines") <= 0 {
		t.Error("goroutine gauge not sampled")
	}
	c.Stop()
	c.Stop()
}
