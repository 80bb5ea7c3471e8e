package metrics

import "testing"

func TestEngine_Counts(t *testing.T) {
	e := NewEngine("catnav/test")
	defer e.Stop()
	e.Steps.Inc(3)
	e.Estimates.Mark(2)
	counts := e.Counts()
	if counts["catnav/test/steps"] != 3 {
		t.Errorf("have %d want 3", counts["catnav/test/steps"])
	}
	if counts["catnav/test/estimates"] != 2 {
		t.Errorf("have %d want 2", counts["catnav/test/estimates"])
	}
	if counts["catnav/test/fixes"] != 0 {
		t.Errorf("have %d want 0", counts["catnav/test/fixes"])
	}
}
