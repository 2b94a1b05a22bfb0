package toast

import "github.com/tphakala/toastd/internal/logger"

// Subscribe returns a channel of change notifications and a function that ends
// the subscription. Sends never block the store: when the buffer is full the
// change is dropped, and the subscriber can resync from the Snapshot carried by
// the next change or from Store.Snapshot.
func (s *Store) Subscribe() (<-chan Change, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Change, s.cfg.SubscriberBuffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	s.nextSub++
	id := s.nextSub
	s.subs[id] = ch

	s.log.Debug("subscriber added", logger.Int("total_subscribers", len(s.subs)))

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			close(c)
			delete(s.subs, id)
		}
	}
}

// publishLocked fans a change out to every subscriber without blocking
func (s *Store) publishLocked(kind ChangeType, e *entry, reason RemovalReason) {
	if len(s.subs) == 0 {
		return
	}

	now := s.timers.Now()
	change := Change{
		Type:     kind,
		Toast:    s.viewLocked(e, now),
		Reason:   reason,
		Snapshot: s.snapshotLocked(),
	}

	for id, ch := range s.subs {
		select {
		case ch <- change:
		default:
			s.recorder.RecordDroppedChange()
			s.log.Debug("subscriber buffer full, change dropped",
				logger.Int("subscriber", int(id)),
				logger.String("change", string(kind)))
		}
	}
}
