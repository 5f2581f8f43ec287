package session

// EventKind names a change to a session.
type EventKind string

const (
	EventMessages      EventKind = "messages"
	EventContent       EventKind = "content"
	EventStreamStarted EventKind = "stream_started"
	EventStreamEnded   EventKind = "stream_ended"
	EventTitle         EventKind = "title"
	EventError         EventKind = "error"
)

// Event tells a subscriber that the state of ChatID changed. It carries no
// state; read it with Store.State.
type Event struct {
	Kind      EventKind
	ChatID    string
	MessageID string
	Title     string
}

const subscriberBuffer = 64

// Subscribe returns a channel of events for chatID and a function that
// cancels the subscription. Events are dropped for subscribers that fall
// behind. The channel is closed when the session is cleared or the
// subscription cancelled.
func (s *Store) Subscribe(chatID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	s.subMu.Lock()
	set, ok := s.subs[chatID]
	if !ok {
		set = make(map[chan Event]struct{})
		s.subs[chatID] = set
	}
	set[ch] = struct{}{}
	s.subMu.Unlock()

	cancel := func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if set, ok := s.subs[chatID]; ok {
			if _, ok := set[ch]; ok {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(s.subs, chatID)
			}
		}
	}
	return ch, cancel
}

func (s *Store) emit(ev Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subs[ev.ChatID] {
		select {
		case ch <- ev:
		default:
			s.logger.Debug("subscriber behind, event dropped", "chat_id", ev.ChatID, "kind", ev.Kind)
		}
	}
}

func (s *Store) closeSubscribers(chatID string) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subs[chatID] {
		close(ch)
	}
	delete(s.subs, chatID)
}
