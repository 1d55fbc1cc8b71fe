package cache

// Subscription is a consumer's registered interest in one cache entry.
type Subscription struct {
	id      uint64
	key     Key
	coord   *Coordinator
	updates chan Snapshot
	closed  bool
}

// Key returns the entry this subscription watches.
func (s *Subscription) Key() Key {
	return s.key
}

// Updates delivers every snapshot after the one returned by Subscribe. Only
// the latest undelivered snapshot is kept. The channel is closed on
// unsubscribe or when the coordinator closes.
func (s *Subscription) Updates() <-chan Snapshot {
	return s.updates
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.coord.Unsubscribe(s)
}

// deliver must be called with the coordinator lock held. Only the coordinator
// sends, so after draining the buffer the send cannot block.
func (s *Subscription) deliver(snap Snapshot) {
	if s.closed {
		return
	}
	select {
	case s.updates <- snap:
	default:
		select {
		case <-s.updates:
		default:
		}
		s.updates <- snap
	}
}

// close must be called with the coordinator lock held.
func (s *Subscription) close() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.updates)
}
