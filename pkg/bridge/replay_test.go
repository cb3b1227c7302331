package bridge

import "testing"

func TestReplayWindow(t *testing.T) {
	w := NewReplayWindow(4)
	if !w.Check(1) {
		t.Fatalf("first counter should be accepted")
	}
	w.Mark(1)
	if w.Check(1) {
		t.Fatalf("duplicate should be rejected")
	}
	w.Mark(2)
	if !w.Check(3) {
		t.Fatalf("new counter should be accepted")
	}
	w.Mark(10)
	if w.Check(5) {
		t.Fatalf("counter older than the window should be rejected")
	}
}

func TestReplayWindowLargeJump(t *testing.T) {
	w := NewReplayWindow(128)
	w.Mark(1)
	w.Mark(1000)
	if w.Check(1) {
		t.Fatalf("ancient counter should be rejected after jump")
	}
	if !w.Check(999) {
		t.Fatalf("in-window counter should be accepted after jump")
	}
	w.Mark(999)
	if w.Check(999) {
		t.Fatalf("marked counter should be rejected")
	}
}
