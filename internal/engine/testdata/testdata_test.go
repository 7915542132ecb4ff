package testdata

import (
	"strings"
	"testing"
)

func TestLoadExpected(t *testing.T) {
	exp, err := LoadExpected()
	if err != nil {
		t.Fatalf("LoadExpected: %v", err)
	}
	if exp.Year != 2017 {
		t.Errorf("year = %d, want 2017", exp.Year)
	}
	if got := strings.Count(Maillog, "\n"); got != exp.LinesRead {
		t.Errorf("maillog has %d lines, expected.json says %d", got, exp.LinesRead)
	}
	for _, rec := range append(exp.Completed, exp.Incomplete...) {
		if rec.Host == "" || rec.SessionID == "" {
			t.Errorf("record missing key: %+v", rec)
		}
		if rec.EndTime.Before(rec.StartTime) {
			t.Errorf("%s/%s: endTime before startTime", rec.Host, rec.SessionID)
		}
	}
}
