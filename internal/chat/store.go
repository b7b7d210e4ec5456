package chat

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/MegaGrindStone/codex-prime-ui/internal/models"
	"github.com/google/uuid"
)

// Store holds the ordered conversation. At most one message is streaming at any time, and only
// that message's text may change. Every mutation is reported to the subscribers after the store
// lock is released, in subscription order. Changes are delivered in the order the mutations
// happened; observers may read the store but must not mutate it.
type Store struct {
	// deliver serializes each mutation with the delivery of its change.
	deliver sync.Mutex

	mu        sync.Mutex
	messages  []models.Message
	streaming int

	observers   map[int]func(models.Change)
	nextObserve int
}

// NewStore creates a store containing the given messages, in order.
func NewStore(seed ...models.Message) (*Store, error) {
	s := &Store{
		streaming: -1,
		observers: make(map[int]func(models.Change)),
	}
	for _, msg := range seed {
		if err := s.Append(msg); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Subscribe registers fn to be called after each mutation. The returned function removes the
// subscription.
func (s *Store) Subscribe(fn func(models.Change)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextObserve
	s.nextObserve++
	s.observers[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.observers, id)
	}
}

// Messages returns a snapshot of the conversation.
func (s *Store) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}

// Streaming returns the message currently streaming, if any.
func (s *Store) Streaming() (models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streaming < 0 {
		return models.Message{}, false
	}
	return s.messages[s.streaming], true
}

// Append inserts msg at the end of the conversation. An empty ID is replaced with a fresh one and
// a zero CreatedAt with the current time.
func (s *Store) Append(msg models.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	if slices.ContainsFunc(s.messages, func(m models.Message) bool { return m.ID == msg.ID }) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateID, msg.ID)
	}
	if msg.Streaming {
		if s.streaming >= 0 {
			s.mu.Unlock()
			return ErrAlreadyStreaming
		}
		s.streaming = len(s.messages)
	}
	s.messages = append(s.messages, msg)
	s.mu.Unlock()

	s.notify(models.Change{Kind: models.ChangeAppended, Message: msg})
	return nil
}

// StreamAppend concatenates fragment to the streaming message, creating a new assistant message
// when nothing is streaming. It returns the id of the streaming message.
func (s *Store) StreamAppend(fragment string) string {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	if s.streaming >= 0 {
		s.messages[s.streaming].Text += fragment
		msg := s.messages[s.streaming]
		s.mu.Unlock()

		s.notify(models.Change{Kind: models.ChangeUpdated, Message: msg})
		return msg.ID
	}

	msg := models.Message{
		ID:        uuid.New().String(),
		Sender:    models.SenderAssistant,
		Text:      fragment,
		CreatedAt: time.Now(),
		Streaming: true,
	}
	s.streaming = len(s.messages)
	s.messages = append(s.messages, msg)
	s.mu.Unlock()

	s.notify(models.Change{Kind: models.ChangeAppended, Message: msg})
	return msg.ID
}

// FinalizeStreaming marks the streaming message as complete. It's a no-op when nothing streams.
func (s *Store) FinalizeStreaming() {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	if s.streaming < 0 {
		s.mu.Unlock()
		return
	}
	s.messages[s.streaming].Streaming = false
	msg := s.messages[s.streaming]
	s.streaming = -1
	s.mu.Unlock()

	s.notify(models.Change{Kind: models.ChangeFinalized, Message: msg})
}

// DiscardStreaming removes the streaming message entirely. It's a no-op when nothing streams.
func (s *Store) DiscardStreaming() {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	if s.streaming < 0 {
		s.mu.Unlock()
		return
	}
	msg := s.messages[s.streaming]
	s.messages = slices.Delete(s.messages, s.streaming, s.streaming+1)
	s.streaming = -1
	s.mu.Unlock()

	msg.Streaming = false
	s.notify(models.Change{Kind: models.ChangeRemoved, Message: msg})
}

func (s *Store) notify(change models.Change) {
	s.mu.Lock()
	ids := make([]int, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(models.Change), len(ids))
	for i, id := range ids {
		fns[i] = s.observers[id]
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(change)
	}
}
