// Package thread owns the durable set of conversation threads.
package thread

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helioshq/assistant-portal/internal/model"
	"github.com/helioshq/assistant-portal/pkg/logger"
	"github.com/helioshq/assistant-portal/pkg/metrics"
)

// ErrThreadNotFound is returned when a thread id is unknown to the store.
// Callers must check existence before mutating; the store never fabricates
// a thread.
var ErrThreadNotFound = errors.New("thread not found")

// Canceler terminates the active streaming session for a thread, if any.
// The streaming coordinator registers one so that deleting a thread also
// tears down its in-flight exchange.
type Canceler func(threadID string)

// Store is the single source of truth for conversation threads. Threads live
// for the lifetime of the process; there is no durability contract.
type Store struct {
	mu       sync.RWMutex
	threads  map[string]*model.Thread
	current  string
	canceler Canceler

	subMu   sync.Mutex
	subs    map[int]chan model.ThreadEvent
	nextSub int
	bufSize int

	logger *logger.Logger
}

// NewStore creates a new thread store. bufSize bounds each subscriber's
// event buffer; events beyond it are dropped for that subscriber.
func NewStore(bufSize int, log *logger.Logger) *Store {
	if bufSize <= 0 {
		bufSize = 64
	}
	return &Store{
		threads: make(map[string]*model.Thread),
		subs:    make(map[int]chan model.ThreadEvent),
		bufSize: bufSize,
		logger:  log,
	}
}

// RegisterCanceler installs the hook used to terminate streaming sessions
// on delete. At most one canceler is registered; later calls replace it.
func (s *Store) RegisterCanceler(c Canceler) {
	s.mu.Lock()
	s.canceler = c
	s.mu.Unlock()
}

// Create creates a new thread bound to the given assistant. A fresh thread
// is always created, even if one already exists for that assistant; reuse
// decisions belong to the caller.
func (s *Store) Create(assistantID, assistantName string) *model.Thread {
	now := time.Now()
	t := &model.Thread{
		ID:            uuid.Must(uuid.NewV7()).String(),
		AssistantID:   assistantID,
		AssistantName: assistantName,
		Messages:      []model.Message{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	s.mu.Lock()
	s.threads[t.ID] = t
	s.mu.Unlock()

	metrics.ThreadsTotal.Inc()
	s.logger.Info("thread created",
		zap.String("thread_id", t.ID),
		zap.String("assistant_id", assistantID),
	)

	s.publish(model.ThreadCreated, t.ID)
	return t.Clone()
}

// Get retrieves a thread by ID.
func (s *Store) Get(threadID string) (*model.Thread, error) {
	s.mu.RLock()
	t, exists := s.threads[threadID]
	s.mu.RUnlock()

	if !exists {
		return nil, ErrThreadNotFound
	}
	return t.Clone(), nil
}

// GetAll returns all threads. Order is unspecified; callers use this for
// lookup by assistant.
func (s *Store) GetAll() []model.Thread {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Thread, 0, len(s.threads))
	for _, t := range s.threads {
		out = append(out, *t.Clone())
	}
	return out
}

// FindByAssistant returns the thread bound to the given assistant, or nil if
// none exists. When multiple exist, the most recently updated wins.
func (s *Store) FindByAssistant(assistantID string) *model.Thread {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *model.Thread
	for _, t := range s.threads {
		if t.AssistantID != assistantID {
			continue
		}
		if best == nil || t.UpdatedAt.After(best.UpdatedAt) {
			best = t
		}
	}
	if best == nil {
		return nil
	}
	return best.Clone()
}

// SetCurrent switches the single "current thread" pointer. Switching has no
// side effects on other threads.
func (s *Store) SetCurrent(threadID string) error {
	s.mu.Lock()
	if _, exists := s.threads[threadID]; !exists {
		s.mu.Unlock()
		return ErrThreadNotFound
	}
	s.current = threadID
	s.mu.Unlock()

	s.publish(model.ThreadCurrentChanged, threadID)
	return nil
}

// GetCurrent returns the current thread, or nil if none is set.
func (s *Store) GetCurrent() *model.Thread {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == "" {
		return nil
	}
	t, exists := s.threads[s.current]
	if !exists {
		return nil
	}
	return t.Clone()
}

// Update replaces a thread's mutable state (messages) and refreshes
// UpdatedAt. Unknown ids are a silent no-op; callers check existence first
// via Get.
func (s *Store) Update(t *model.Thread) {
	s.mu.Lock()
	existing, exists := s.threads[t.ID]
	if !exists {
		s.mu.Unlock()
		return
	}

	msgs := make([]model.Message, len(t.Messages))
	copy(msgs, t.Messages)
	existing.Messages = msgs
	existing.UpdatedAt = time.Now()
	s.mu.Unlock()

	s.publish(model.ThreadUpdated, t.ID)
}

// AppendMessage appends a message to a thread.
func (s *Store) AppendMessage(threadID string, msg model.Message) error {
	s.mu.Lock()
	t, exists := s.threads[threadID]
	if !exists {
		s.mu.Unlock()
		return ErrThreadNotFound
	}
	t.Messages = append(t.Messages, msg)
	t.UpdatedAt = time.Now()
	s.mu.Unlock()

	metrics.MessagesTotal.WithLabelValues(string(msg.Role)).Inc()
	s.publish(model.ThreadUpdated, threadID)
	return nil
}

// Delete removes the thread. If it was current, current becomes none until
// explicitly reset. Any active streaming session for the thread is
// terminated through the registered canceler.
func (s *Store) Delete(threadID string) error {
	s.mu.Lock()
	if _, exists := s.threads[threadID]; !exists {
		s.mu.Unlock()
		return ErrThreadNotFound
	}
	delete(s.threads, threadID)
	if s.current == threadID {
		s.current = ""
	}
	canceler := s.canceler
	s.mu.Unlock()

	if canceler != nil {
		canceler(threadID)
	}

	s.logger.Info("thread deleted", zap.String("thread_id", threadID))
	s.publish(model.ThreadDeleted, threadID)
	return nil
}

// Subscribe registers a mutation event subscriber. The returned channel
// receives every store mutation until Unsubscribe is called; events are
// dropped for a subscriber whose buffer is full.
func (s *Store) Subscribe() (<-chan model.ThreadEvent, func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan model.ThreadEvent, s.bufSize)
	s.subs[id] = ch
	s.subMu.Unlock()

	unsubscribe := func() {
		s.subMu.Lock()
		if existing, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(existing)
		}
		s.subMu.Unlock()
	}
	return ch, unsubscribe
}

func (s *Store) publish(eventType model.ThreadEventType, threadID string) {
	event := model.ThreadEvent{
		Type:      eventType,
		ThreadID:  threadID,
		Timestamp: time.Now(),
	}

	s.subMu.Lock()
	for _, ch := range s.subs {
		select {
		case ch <- event:
		default:
			// Subscriber is behind; it will resynchronize from the store.
		}
	}
	s.subMu.Unlock()
}
