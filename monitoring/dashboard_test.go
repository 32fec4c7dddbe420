package monitoring

import (
	"errors"
	"testing"
	"time"

	"obesityboard/ml"
	"obesityboard/pipeline"
)

func TestDashboardSwap(t *testing.T) {
	d := NewDashboard()
	if r, v := d.Current(); r != nil || v != 0 {
		t.Fatalf("expected empty dashboard, got %v/%d", r, v)
	}
	if d.Status().Ready {
		t.Fatal("empty dashboard should not be ready")
	}

	events := d.Subscribe("test")
	result := &pipeline.Result{RunID: "run-1", Removed: 2, Report: &ml.ClassificationReport{Accuracy: 0.9}}
	if v := d.Swap(result); v != 1 {
		t.Fatalf("expected version 1, got %d", v)
	}

	select {
	case ev := <-events:
		if ev.Type != SnapshotUpdated || ev.Version != 1 {
			t.Fatalf("unexpected event %+v", ev)
		}
		summary, ok := ev.Data.(SnapshotSummary)
		if !ok || summary.RunID != "run-1" || summary.Accuracy != 0.9 || summary.Removed != 2 {
			t.Fatalf("unexpected summary %+v", ev.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}

	status := d.Status()
	if !status.Ready || status.RunID != "run-1" || status.Subscribers != 1 {
		t.Fatalf("unexpected status %+v", status)
	}
	if v := d.Swap(&pipeline.Result{RunID: "run-2"}); v != 2 {
		t.Fatalf("expected version 2, got %d", v)
	}
}

func TestDashboardRecordFailureKeepsSnapshot(t *testing.T) {
	d := NewDashboard()
	d.Swap(&pipeline.Result{RunID: "good"})
	events := d.Subscribe("test")

	d.RecordFailure(errors.New("bad csv"))

	current, version := d.Current()
	if current.RunID != "good" || version != 1 {
		t.Fatalf("failure must not replace the snapshot, got %s/%d", current.RunID, version)
	}
	if d.Status().LastError != "bad csv" {
		t.Fatalf("expected last error recorded, got %q", d.Status().LastError)
	}
	ev := <-events
	if ev.Type != ReloadFailed {
		t.Fatalf("expected reload_failed, got %s", ev.Type)
	}

	d.Swap(&pipeline.Result{RunID: "next"})
	if d.Status().LastError != "" {
		t.Fatal("successful swap should clear the last error")
	}
}

func TestDashboardUnsubscribe(t *testing.T) {
	d := NewDashboard()
	ch := d.Subscribe("a")
	if d.Subscribe("a") != ch {
		t.Fatal("subscribing twice should return the same channel")
	}
	d.Unsubscribe("a")
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
	d.Unsubscribe("a")
}
