package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/groundstation/tmtc-broker/metrics"
)

func TestDroppedEventCountIncrementsByReason(t *testing.T) {
	before := testutil.ToFloat64(metrics.DroppedEventCount.WithLabelValues("unknown_apid"))
	metrics.DroppedEventCount.WithLabelValues("unknown_apid").Inc()
	after := testutil.ToFloat64(metrics.DroppedEventCount.WithLabelValues("unknown_apid"))
	if after != before+1 {
		t.Errorf("DroppedEventCount: got %v want %v", after, before+1)
	}
}

func TestFOP1QueueDepthGaugeSetsAndReads(t *testing.T) {
	metrics.FOP1QueueDepth.Set(3)
	if got := testutil.ToFloat64(metrics.FOP1QueueDepth); got != 3 {
		t.Errorf("FOP1QueueDepth: got %v want 3", got)
	}
}

func TestObserveRecorderBytesOnlyAddsForwardProgress(t *testing.T) {
	before := testutil.ToFloat64(metrics.RecorderBytesTotal)

	next := metrics.ObserveRecorderBytes(0, 100)
	if next != 100 {
		t.Fatalf("ObserveRecorderBytes: got %d want 100", next)
	}
	if got := testutil.ToFloat64(metrics.RecorderBytesTotal); got != before+100 {
		t.Errorf("RecorderBytesTotal after growth: got %v want %v", got, before+100)
	}

	// A non-increasing reading (e.g. a reset counter) must not add a
	// negative delta.
	next = metrics.ObserveRecorderBytes(100, 50)
	if next != 50 {
		t.Fatalf("ObserveRecorderBytes: got %d want 50", next)
	}
	if got := testutil.ToFloat64(metrics.RecorderBytesTotal); got != before+100 {
		t.Errorf("RecorderBytesTotal after reset should be unchanged: got %v want %v", got, before+100)
	}
}

func TestCommandsSentCountByFrameType(t *testing.T) {
	before := testutil.ToFloat64(metrics.CommandsSentCount.WithLabelValues("AD"))
	metrics.CommandsSentCount.WithLabelValues("AD").Inc()
	after := testutil.ToFloat64(metrics.CommandsSentCount.WithLabelValues("AD"))
	if after != before+1 {
		t.Errorf("CommandsSentCount: got %v want %v", after, before+1)
	}
}
