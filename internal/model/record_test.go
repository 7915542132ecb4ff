package model

import (
	"testing"
	"time"
)

func TestObserveWindow(t *testing.T) {
	base := time.Date(2017, time.January, 5, 9, 0, 0, 0, time.UTC)
	r := NewMailRecord("mx1", "ABC")

	for _, off := range []time.Duration{5 * time.Second, -3 * time.Second, 10 * time.Second, 0} {
		r.Observe(base.Add(off))
	}

	if !r.StartTime.Equal(base.Add(-3 * time.Second)) {
		t.Errorf("StartTime = %v", r.StartTime)
	}
	if !r.EndTime.Equal(base.Add(10 * time.Second)) {
		t.Errorf("EndTime = %v", r.EndTime)
	}
	if got := r.Duration(); got != 13*time.Second {
		t.Errorf("Duration = %v, want 13s", got)
	}
}

func TestNewMailRecordIsOpen(t *testing.T) {
	r := NewMailRecord("mx1", "ABC")
	if r.Completed {
		t.Error("new record should not be completed")
	}
	if r.Duration() != 0 {
		t.Errorf("Duration = %v, want 0", r.Duration())
	}
}

func TestCloneIsDeep(t *testing.T) {
	r := NewMailRecord("mx1", "ABC")
	r.EnvelopeTo = []string{"a@x"}
	r.RelayHost = []string{"mx.x"}
	r.SubsystemsSeen = []string{"qmgr"}

	c := r.Clone()
	r.EnvelopeTo[0] = "b@x"
	r.RelayHost = append(r.RelayHost, "mx.y")
	r.SubsystemsSeen[0] = "smtp"
	r.SizeBytes = 10

	if c.EnvelopeTo[0] != "a@x" || len(c.RelayHost) != 1 || c.SubsystemsSeen[0] != "qmgr" || c.SizeBytes != 0 {
		t.Errorf("clone shares state with original: %+v", c)
	}
}
