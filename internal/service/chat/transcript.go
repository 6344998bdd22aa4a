package chat

import (
	"sync"

	"github.com/zhouzirui/linear-tutor/internal/model/chat"
)

// Snapshot is the transcript state handed to subscribers after each mutation.
type Snapshot struct {
	Messages []chat.Message
}

// Last returns the newest message, if any.
func (s Snapshot) Last() (chat.Message, bool) {
	if len(s.Messages) == 0 {
		return chat.Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// Listener receives a snapshot after every transcript mutation.
type Listener func(Snapshot)

// ReplaceOption marks the terminal state of a message while replacing its content.
type ReplaceOption func(*chat.Message)

// Failed marks the message as a failed turn.
func Failed() ReplaceOption {
	return func(m *chat.Message) { m.Failed = true }
}

// Cancelled marks the message as a cancelled turn.
func Cancelled() ReplaceOption {
	return func(m *chat.Message) { m.Cancelled = true }
}

// Transcript is the ordered, in-memory list of exchanged messages.
// Assistant messages appended with empty content stay open for Replace until
// they are finalized, failed or cancelled.
type Transcript struct {
	mu        sync.RWMutex
	messages  []chat.Message
	index     map[string]int
	open      map[string]bool
	listeners map[int]Listener
	nextID    int

	// notifyMu serializes listener delivery so snapshots arrive in mutation order.
	notifyMu sync.Mutex
}

// NewTranscript creates an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{
		messages:  make([]chat.Message, 0, 16),
		index:     make(map[string]int),
		open:      make(map[string]bool),
		listeners: make(map[int]Listener),
	}
}

// Append adds messages in order as a single mutation: subscribers observe all of them at once.
func (t *Transcript) Append(msgs ...chat.Message) {
	if len(msgs) == 0 {
		return
	}

	t.mutate(func() bool {
		for _, msg := range msgs {
			t.index[msg.ID] = len(t.messages)
			t.messages = append(t.messages, msg)
			if msg.Role == chat.RoleAssistant && msg.Content == "" && !msg.Failed && !msg.Cancelled {
				t.open[msg.ID] = true
			}
		}
		return true
	})
}

// Replace overwrites the content of an open message. Options mark it failed or
// cancelled, which closes it. Unknown or closed ids are ignored.
func (t *Transcript) Replace(id, content string, opts ...ReplaceOption) {
	t.mutate(func() bool {
		pos, ok := t.index[id]
		if !ok || !t.open[id] {
			return false
		}

		msg := t.messages[pos]
		msg.Content = content
		for _, opt := range opts {
			opt(&msg)
		}
		if msg.Failed || msg.Cancelled {
			delete(t.open, id)
		}
		t.messages[pos] = msg
		return true
	})
}

// Finalize closes a message so later Replace calls are ignored.
func (t *Transcript) Finalize(id string) {
	t.mu.Lock()
	delete(t.open, id)
	t.mu.Unlock()
}

// Clear drops every message. Subscribers see the empty transcript before Clear returns.
func (t *Transcript) Clear() {
	t.mutate(func() bool {
		t.messages = make([]chat.Message, 0, 16)
		t.index = make(map[string]int)
		t.open = make(map[string]bool)
		return true
	})
}

// Subscribe registers a listener and returns a function that removes it.
// Listeners run synchronously on the mutating goroutine and must not mutate the transcript.
func (t *Transcript) Subscribe(listener Listener) func() {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.listeners[id] = listener
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.listeners, id)
		t.mu.Unlock()
	}
}

// Messages returns a copy of the transcript.
func (t *Transcript) Messages() []chat.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.copyLocked()
}

// Get returns the message with the given id.
func (t *Transcript) Get(id string) (chat.Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	pos, ok := t.index[id]
	if !ok {
		return chat.Message{}, false
	}
	return t.messages[pos], true
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

func (t *Transcript) mutate(apply func() bool) {
	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()

	t.mu.Lock()
	if !apply() {
		t.mu.Unlock()
		return
	}
	snapshot := Snapshot{Messages: t.copyLocked()}
	listeners := make([]Listener, 0, len(t.listeners))
	for _, l := range t.listeners {
		listeners = append(listeners, l)
	}
	t.mu.Unlock()

	for _, l := range listeners {
		l(snapshot)
	}
}

func (t *Transcript) copyLocked() []chat.Message {
	copied := make([]chat.Message, len(t.messages))
	copy(copied, t.messages)
	return copied
}
