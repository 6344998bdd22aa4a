package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/linear-tutor/internal/model/chat"
	"github.com/zhouzirui/linear-tutor/internal/model/style"
)

// Source produces the reply to one user turn as a one-shot sequence of text
// fragments. Recv on the returned reader yields io.EOF after the last fragment.
type Source interface {
	StreamReply(ctx context.Context, prior []chat.Message, text string, attachment *chat.Attachment, st style.Style) (*schema.StreamReader[string], error)
	// Reset drops any session state the source keeps on behalf of the transcript.
	Reset()
}

// Controller runs user turns against a Source and folds the reply into the
// transcript. At most one turn is in flight at a time.
type Controller struct {
	transcript *Transcript
	source     Source
	busy       atomic.Bool

	mu            sync.RWMutex
	style         style.Style
	busyListeners []func(bool)
	lastErr       error
}

// NewController wires a transcript to a reply source.
func NewController(transcript *Transcript, source Source, st style.Style) *Controller {
	if !st.Valid() {
		st = style.Default
	}
	return &Controller{
		transcript: transcript,
		source:     source,
		style:      st,
	}
}

// Transcript returns the store the controller mutates.
func (c *Controller) Transcript() *Transcript {
	return c.transcript
}

// Busy reports whether a turn is in flight.
func (c *Controller) Busy() bool {
	return c.busy.Load()
}

// OnBusy registers fn to be called whenever the busy flag changes.
func (c *Controller) OnBusy(fn func(bool)) {
	c.mu.Lock()
	c.busyListeners = append(c.busyListeners, fn)
	c.mu.Unlock()
}

// Style returns the teaching style forwarded with each turn.
func (c *Controller) Style() style.Style {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.style
}

// SetStyle changes the teaching style used by subsequent turns.
func (c *Controller) SetStyle(st style.Style) error {
	if !st.Valid() {
		return fmt.Errorf("unknown teaching style %q", st)
	}
	c.mu.Lock()
	c.style = st
	c.mu.Unlock()
	return nil
}

// LastError returns the error of the most recent turn, nil if it succeeded.
func (c *Controller) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// Submit runs one turn and blocks until it finishes. Blank text is rejected
// with ErrValidation. A call made while another turn is in flight is dropped
// without error. Failures of the turn itself are recorded in the placeholder
// and in LastError, never returned. Cancelling ctx finalizes the placeholder
// with the partial reply.
func (c *Controller) Submit(ctx context.Context, text string, attachment *chat.Attachment) error {
	if strings.TrimSpace(text) == "" {
		return NewTurnError(ErrValidation, "message is empty", nil)
	}
	if !c.busy.CompareAndSwap(false, true) {
		log.Printf("[chat] turn dropped: another turn is in flight")
		return nil
	}
	c.notifyBusy(true)
	defer func() {
		c.busy.Store(false)
		c.notifyBusy(false)
	}()

	prior := c.transcript.Messages()
	user := chat.NewUserMessage(text, attachment)
	placeholder := chat.NewPlaceholder()
	c.transcript.Append(user, placeholder)

	st := c.Style()
	log.Printf("[chat] turn started message=%s style=%s", placeholder.ID, st)

	err := c.run(ctx, prior, text, attachment, st, placeholder.ID)

	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()

	switch {
	case err == nil:
		log.Printf("[chat] turn finished message=%s", placeholder.ID)
	case errors.Is(err, context.Canceled):
		log.Printf("[chat] turn cancelled message=%s", placeholder.ID)
	default:
		log.Printf("[chat] turn failed message=%s kind=%v: %v", placeholder.ID, Classify(err), err)
	}
	return nil
}

// Clear empties the transcript and resets the source session. It is ignored
// while a turn is in flight and reports whether it ran. It holds the busy
// flag while clearing, so a Submit racing with it is dropped.
func (c *Controller) Clear() bool {
	if !c.busy.CompareAndSwap(false, true) {
		return false
	}
	defer c.busy.Store(false)

	c.transcript.Clear()
	c.source.Reset()
	return true
}

func (c *Controller) run(ctx context.Context, prior []chat.Message, text string, attachment *chat.Attachment, st style.Style, id string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewTurnError(ErrUpstream, fmt.Sprintf("reply source failed: %v", r), nil)
			c.transcript.Replace(id, Describe(err), Failed())
		}
	}()

	stream, err := c.source.StreamReply(ctx, prior, text, attachment, st)
	if err != nil {
		if cancelled(ctx) {
			return c.cancel(ctx, id, "")
		}
		return c.fail(id, err)
	}
	defer stream.Close()

	var content strings.Builder
	for {
		fragment, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if cancelled(ctx) {
			return c.cancel(ctx, id, content.String())
		}
		if recvErr != nil {
			return c.fail(id, recvErr)
		}
		if fragment == "" {
			continue
		}
		content.WriteString(fragment)
		c.transcript.Replace(id, content.String())
	}

	if content.Len() == 0 {
		return c.fail(id, NewTurnError(ErrEmptyResponse, NoResponseText, nil))
	}
	c.transcript.Finalize(id)
	return nil
}

func (c *Controller) fail(id string, err error) error {
	c.transcript.Replace(id, Describe(err), Failed())
	return err
}

func (c *Controller) cancel(ctx context.Context, id, partial string) error {
	if partial == "" {
		partial = CancelledText
	}
	c.transcript.Replace(id, partial, Cancelled())
	return ctx.Err()
}

func (c *Controller) notifyBusy(busy bool) {
	c.mu.RLock()
	listeners := make([]func(bool), len(c.busyListeners))
	copy(listeners, c.busyListeners)
	c.mu.RUnlock()

	for _, fn := range listeners {
		fn(busy)
	}
}

func cancelled(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.Canceled)
}
