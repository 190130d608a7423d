package ledger

import "testing"

func item(user, tank string) QueueItem {
	return QueueItem{User: user, Tank: tank, Mult: 1, SpecialType: CategoryNormal}
}

func TestDequeueTopPrefersSupporterLane(t *testing.T) {
	s := NewState()
	AddToNormalQueue(s, item("n1", "IS-7"))
	AddToNormalQueue(s, item("n2", "T-62A"))
	AddToSupporterQueue(s, item("s1", "Obj 140"))
	AddToSupporterQueue(s, item("s2", "Tiger"))

	want := []struct {
		user string
		lane Lane
	}{
		{"s1", LaneSupporter},
		{"s2", LaneSupporter},
		{"n1", LaneNormal},
		{"n2", LaneNormal},
	}
	for i, w := range want {
		before := s.Len()
		got, lane, ok := DequeueTop(s)
		if !ok {
			t.Fatalf("step %d: DequeueTop returned nothing", i)
		}
		if got.User != w.user || lane != w.lane {
			t.Errorf("step %d: got %s/%v, want %s/%v", i, got.User, lane, w.user, w.lane)
		}
		if s.Len() != before-1 {
			t.Errorf("step %d: queue length %d, want %d", i, s.Len(), before-1)
		}
	}
	if _, lane, ok := DequeueTop(s); ok || lane != LaneNone {
		t.Errorf("expected empty queues, got ok=%v lane=%v", ok, lane)
	}
}

func TestRefundTopNormalBlockedBySupporter(t *testing.T) {
	s := NewState()
	AddToNormalQueue(s, item("n1", "IS-7"))
	AddToSupporterQueue(s, item("s1", "Tiger"))

	if _, ok := RefundTopNormal(s); ok {
		t.Fatalf("refund should be blocked while a supporter request is pending")
	}
	if len(s.NormalQueue) != 1 || len(s.SupporterQueue) != 1 {
		t.Fatalf("blocked refund mutated queues: %d/%d", len(s.SupporterQueue), len(s.NormalQueue))
	}

	DequeueTop(s)
	got, ok := RefundTopNormal(s)
	if !ok || got.User != "n1" {
		t.Fatalf("RefundTopNormal = %+v,%v", got, ok)
	}
	if _, ok := RefundTopNormal(s); ok {
		t.Errorf("refund on empty normal queue should report false")
	}
}

func TestRefundAllNormal(t *testing.T) {
	s := NewState()
	AddToSupporterQueue(s, item("s1", "Tiger"))
	AddToNormalQueue(s, item("n1", "IS-7"))
	AddToNormalQueue(s, item("n2", "E 100"))

	got := RefundAllNormal(s)
	if len(got) != 2 || got[0].User != "n1" || got[1].User != "n2" {
		t.Fatalf("RefundAllNormal = %+v", got)
	}
	if len(s.NormalQueue) != 0 {
		t.Errorf("normal queue not emptied")
	}
	if len(s.SupporterQueue) != 1 {
		t.Errorf("supporter queue touched")
	}
	if again := RefundAllNormal(s); len(again) != 0 {
		t.Errorf("second refund-all returned %d items", len(again))
	}
}

func TestPosition(t *testing.T) {
	s := NewState()
	AddToSupporterQueue(s, item("Alice", "Tiger"))
	AddToSupporterQueue(s, item("Bob", "Maus"))
	AddToNormalQueue(s, item("carol", "IS-7"))
	AddToNormalQueue(s, item("Bob", "E 100"))

	tests := []struct {
		name string
		want int
	}{
		{"alice", 1},
		{"BOB", 2},
		{"Carol", 3},
		{"dave", 0},
	}
	for _, tt := range tests {
		if got := Position(s, tt.name); got != tt.want {
			t.Errorf("Position(%q) = %d, want %d", tt.name, got, tt.want)
		}
	}
}
