package ledger

import "strings"

// AddToSupporterQueue appends item to the priority lane.
func AddToSupporterQueue(s *State, item QueueItem) {
	s.SupporterQueue = append(s.SupporterQueue, item)
}

// AddToNormalQueue appends item to the normal lane.
func AddToNormalQueue(s *State, item QueueItem) {
	s.NormalQueue = append(s.NormalQueue, item)
}

// DequeueTop pops the head of the supporter lane, or the head of the normal lane when
// the supporter lane is empty. ok is false when both lanes are empty.
func DequeueTop(s *State) (item QueueItem, lane Lane, ok bool) {
	if len(s.SupporterQueue) > 0 {
		item, s.SupporterQueue = popHead(s.SupporterQueue)
		return item, LaneSupporter, true
	}
	if len(s.NormalQueue) > 0 {
		item, s.NormalQueue = popHead(s.NormalQueue)
		return item, LaneNormal, true
	}
	return QueueItem{}, LaneNone, false
}

// RefundTopNormal pops the head of the normal lane, but only while the supporter lane is
// empty: a pending supporter request is the actionable head and blocks normal refunds.
func RefundTopNormal(s *State) (QueueItem, bool) {
	if len(s.SupporterQueue) > 0 || len(s.NormalQueue) == 0 {
		return QueueItem{}, false
	}
	var item QueueItem
	item, s.NormalQueue = popHead(s.NormalQueue)
	return item, true
}

// RefundAllNormal empties the normal lane and returns what it held, in order.
func RefundAllNormal(s *State) []QueueItem {
	items := s.NormalQueue
	s.NormalQueue = []QueueItem{}
	if items == nil {
		return []QueueItem{}
	}
	return items
}

// Len returns the combined number of queued requests.
func (s *State) Len() int {
	return len(s.SupporterQueue) + len(s.NormalQueue)
}

// Position returns the 1-based position of userName's first request in the combined
// queue (supporter lane first), or 0 when the user has nothing queued.
func Position(s *State, userName string) int {
	for i, it := range s.SupporterQueue {
		if strings.EqualFold(it.User, userName) {
			return i + 1
		}
	}
	for i, it := range s.NormalQueue {
		if strings.EqualFold(it.User, userName) {
			return len(s.SupporterQueue) + i + 1
		}
	}
	return 0
}

func popHead(q []QueueItem) (QueueItem, []QueueItem) {
	head := q[0]
	rest := make([]QueueItem, len(q)-1)
	copy(rest, q[1:])
	return head, rest
}
