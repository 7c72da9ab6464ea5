package execlog

import (
	"testing"
	"time"
)

func TestAppendAssignsSequence(t *testing.T) {
	lg := New("plan-1")

	for i := 0; i < 5; i++ {
		seq := lg.Append("step-1", EventDispatched, "")
		if seq != i {
			t.Errorf("append %d returned seq %d", i, seq)
		}
	}

	entries := lg.Entries()
	if len(entries) != 5 {
		t.Fatalf("got %d entries, want 5", len(entries))
	}
	for i, e := range entries {
		if e.Seq != i {
			t.Errorf("entry %d has seq %d", i, e.Seq)
		}
		if e.PlanID != "plan-1" {
			t.Errorf("entry %d has plan %q", i, e.PlanID)
		}
	}
}

func TestSubscribeReplaysFromOffset(t *testing.T) {
	lg := New("plan-1")
	lg.Append("a", EventDispatched, "")
	lg.Append("a", EventSucceeded, "")
	lg.Append("b", EventDispatched, "")

	// Restart from offset 1: first two retained entries are skipped or
	// replayed according to the offset.
	ch := lg.Subscribe(1, 8)

	e := <-ch
	if e.Seq != 1 || e.Event != EventSucceeded {
		t.Errorf("first replayed entry = seq %d event %s, want 1 succeeded", e.Seq, e.Event)
	}
	e = <-ch
	if e.Seq != 2 {
		t.Errorf("second replayed entry seq = %d, want 2", e.Seq)
	}

	// Live entries continue the same ordered sequence.
	lg.Append("b", EventSucceeded, "")
	select {
	case e = <-ch:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for live entry")
	}
	if e.Seq != 3 || e.Event != EventSucceeded {
		t.Errorf("live entry = seq %d event %s, want 3 succeeded", e.Seq, e.Event)
	}
}

func TestSubscribeAfterCloseReplaysThenCloses(t *testing.T) {
	lg := New("plan-1")
	lg.Append("a", EventDispatched, "")
	lg.Close()

	ch := lg.Subscribe(0, 4)
	if e, ok := <-ch; !ok || e.Seq != 0 {
		t.Fatalf("expected retained entry after close, got ok=%v", ok)
	}
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after replay")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	lg := New("plan-1")
	ch := lg.Subscribe(0, 4)

	lg.Close()
	lg.Close()

	if _, ok := <-ch; ok {
		t.Error("subscriber channel should be closed")
	}
	if seq := lg.Append("a", EventDispatched, ""); seq != -1 {
		t.Errorf("append after close returned %d, want -1", seq)
	}
}

func TestSinkSeesEveryEntryInOrder(t *testing.T) {
	var got []Entry
	lg := New("plan-1").WithSink(func(e Entry) {
		got = append(got, e)
	})

	lg.Append("a", EventDispatched, "")
	lg.Append("a", EventFailed, "timeout")

	if len(got) != 2 {
		t.Fatalf("sink saw %d entries, want 2", len(got))
	}
	if got[0].Event != EventDispatched || got[1].Event != EventFailed {
		t.Errorf("sink order wrong: %v %v", got[0].Event, got[1].Event)
	}
	if got[1].Detail != "timeout" {
		t.Errorf("detail = %q", got[1].Detail)
	}
}
