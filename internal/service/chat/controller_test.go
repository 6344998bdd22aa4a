package chat_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/linear-tutor/internal/model/chat"
	"github.com/zhouzirui/linear-tutor/internal/model/style"
	chatservice "github.com/zhouzirui/linear-tutor/internal/service/chat"
)

type fakeSource struct {
	fragments []string
	err       error
	recvErr   error
	panicWith any

	// release, when set, holds StreamReply until it is closed or ctx ends.
	release chan struct{}
	started chan struct{}

	calls     atomic.Int32
	resets    atomic.Int32
	mu        sync.Mutex
	lastPrior []chat.Message
	lastText  string
	lastStyle style.Style
}

func (f *fakeSource) StreamReply(ctx context.Context, prior []chat.Message, text string, _ *chat.Attachment, st style.Style) (*schema.StreamReader[string], error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.lastPrior = prior
	f.lastText = text
	f.lastStyle = st
	f.mu.Unlock()

	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	if f.err != nil {
		return nil, f.err
	}

	reader, writer := schema.Pipe[string](len(f.fragments) + 1)
	for _, fragment := range f.fragments {
		writer.Send(fragment, nil)
	}
	if f.recvErr != nil {
		writer.Send("", f.recvErr)
	}
	writer.Close()
	return reader, nil
}

func (f *fakeSource) Reset() {
	f.resets.Add(1)
}

func newController(src chatservice.Source) *chatservice.Controller {
	return chatservice.NewController(chatservice.NewTranscript(), src, style.Default)
}

func TestSubmitAppendsUserAndPlaceholderTogether(t *testing.T) {
	src := &fakeSource{fragments: []string{"42"}}
	ctrl := newController(src)

	var busyChanges []bool
	ctrl.OnBusy(func(b bool) { busyChanges = append(busyChanges, b) })

	var first *chatservice.Snapshot
	ctrl.Transcript().Subscribe(func(s chatservice.Snapshot) {
		if first == nil {
			first = &s
		}
	})

	require.NoError(t, ctrl.Submit(context.Background(), "What is det(I)?", nil))

	require.NotNil(t, first)
	require.Len(t, first.Messages, 2)
	assert.Equal(t, chat.RoleUser, first.Messages[0].Role)
	assert.Equal(t, "What is det(I)?", first.Messages[0].Content)
	assert.Equal(t, chat.RoleAssistant, first.Messages[1].Role)
	assert.Empty(t, first.Messages[1].Content)

	assert.Equal(t, []bool{true, false}, busyChanges)
	assert.False(t, ctrl.Busy())
	assert.Equal(t, 2, ctrl.Transcript().Len())
}

func TestSubmitConcatenatesFragments(t *testing.T) {
	ctrl := newController(&fakeSource{fragments: []string{"Hel", "", "lo"}})

	var progress []string
	ctrl.Transcript().Subscribe(func(s chatservice.Snapshot) {
		if last, ok := s.Last(); ok && last.Role == chat.RoleAssistant {
			progress = append(progress, last.Content)
		}
	})

	require.NoError(t, ctrl.Submit(context.Background(), "hi", nil))

	msgs := ctrl.Transcript().Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "Hello", msgs[1].Content)
	assert.False(t, msgs[1].Failed)
	assert.NoError(t, ctrl.LastError())
	assert.Equal(t, []string{"", "Hel", "Hello"}, progress)
}

func TestSubmitWithoutFragmentsFails(t *testing.T) {
	ctrl := newController(&fakeSource{})

	require.NoError(t, ctrl.Submit(context.Background(), "hi", nil))

	msgs := ctrl.Transcript().Messages()
	require.Len(t, msgs, 2)
	assert.True(t, msgs[1].Failed)
	assert.Equal(t, chatservice.NoResponseText, msgs[1].Content)
	assert.ErrorIs(t, ctrl.LastError(), chatservice.ErrEmptyResponse)
	assert.False(t, ctrl.Busy())
}

func TestSubmitShowsErrorDescription(t *testing.T) {
	ctrl := newController(&fakeSource{err: errors.New("timeout")})

	require.NoError(t, ctrl.Submit(context.Background(), "hi", nil))

	msgs := ctrl.Transcript().Messages()
	require.Len(t, msgs, 2)
	assert.True(t, msgs[1].Failed)
	assert.Equal(t, "timeout", msgs[1].Content)
	assert.Equal(t, chatservice.ErrUpstream, chatservice.Classify(ctrl.LastError()))
}

func TestSubmitUsesFallbackForEmptyDescription(t *testing.T) {
	ctrl := newController(&fakeSource{err: chatservice.NewTurnError(nil, "", nil)})

	require.NoError(t, ctrl.Submit(context.Background(), "hi", nil))

	msgs := ctrl.Transcript().Messages()
	assert.Equal(t, chatservice.FallbackText, msgs[1].Content)
	assert.True(t, msgs[1].Failed)
}

func TestSubmitStreamErrorReplacesPartialContent(t *testing.T) {
	ctrl := newController(&fakeSource{
		fragments: []string{"The rank is"},
		recvErr:   chatservice.NewTurnError(chatservice.ErrNetwork, "stream interrupted", nil),
	})

	require.NoError(t, ctrl.Submit(context.Background(), "rank?", nil))

	msgs := ctrl.Transcript().Messages()
	assert.Equal(t, "stream interrupted", msgs[1].Content)
	assert.True(t, msgs[1].Failed)
	assert.ErrorIs(t, ctrl.LastError(), chatservice.ErrNetwork)
}

func TestSubmitRejectsBlankText(t *testing.T) {
	src := &fakeSource{fragments: []string{"x"}}
	ctrl := newController(src)

	err := ctrl.Submit(context.Background(), "   \n", nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, chatservice.ErrValidation)
	assert.Zero(t, ctrl.Transcript().Len())
	assert.Zero(t, src.calls.Load())
}

func TestSubmitWhileBusyIsDropped(t *testing.T) {
	src := &fakeSource{
		fragments: []string{"done"},
		release:   make(chan struct{}),
		started:   make(chan struct{}, 1),
	}
	ctrl := newController(src)

	finished := make(chan error, 1)
	go func() { finished <- ctrl.Submit(context.Background(), "first", nil) }()

	select {
	case <-src.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first turn never reached the source")
	}
	require.True(t, ctrl.Busy())

	require.NoError(t, ctrl.Submit(context.Background(), "second", nil))
	assert.Equal(t, 2, ctrl.Transcript().Len())
	assert.False(t, ctrl.Clear(), "clear must be ignored while busy")
	assert.Equal(t, 2, ctrl.Transcript().Len())

	close(src.release)
	require.NoError(t, <-finished)

	assert.Equal(t, int32(1), src.calls.Load())
	msgs := ctrl.Transcript().Messages()
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "done", msgs[1].Content)
}

func TestConcurrentSubmitsStartOneTurn(t *testing.T) {
	src := &fakeSource{fragments: []string{"ok"}, release: make(chan struct{})}
	ctrl := newController(src)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = ctrl.Submit(context.Background(), "q", nil)
		}()
	}

	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	close(src.release)
	wg.Wait()

	assert.Equal(t, int32(1), src.calls.Load())
	assert.Equal(t, 2, ctrl.Transcript().Len())
}

func TestClearThenSubmitStartsFresh(t *testing.T) {
	src := &fakeSource{fragments: []string{"answer"}}
	ctrl := newController(src)
	require.NoError(t, ctrl.Submit(context.Background(), "one", nil))
	require.Equal(t, 2, ctrl.Transcript().Len())

	var cleared bool
	ctrl.Transcript().Subscribe(func(s chatservice.Snapshot) {
		if len(s.Messages) == 0 {
			cleared = true
		}
	})
	require.True(t, ctrl.Clear())
	assert.True(t, cleared)
	assert.Equal(t, int32(1), src.resets.Load())

	require.NoError(t, ctrl.Submit(context.Background(), "two", nil))

	msgs := ctrl.Transcript().Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "two", msgs[0].Content)
	assert.Equal(t, "answer", msgs[1].Content)
	assert.Empty(t, src.lastPrior)
}

func TestSubmitPassesPriorTranscriptAndStyle(t *testing.T) {
	src := &fakeSource{fragments: []string{"a"}}
	ctrl := newController(src)
	require.NoError(t, ctrl.SetStyle(style.Concise))
	require.NoError(t, ctrl.Submit(context.Background(), "first", nil))
	require.NoError(t, ctrl.Submit(context.Background(), "second", nil))

	src.mu.Lock()
	defer src.mu.Unlock()
	assert.Len(t, src.lastPrior, 2)
	assert.Equal(t, "second", src.lastText)
	assert.Equal(t, style.Concise, src.lastStyle)
}

func TestSetStyleRejectsUnknown(t *testing.T) {
	ctrl := newController(&fakeSource{})
	require.Error(t, ctrl.SetStyle(style.Style("poetic")))
	assert.Equal(t, style.Default, ctrl.Style())
}

func TestSubmitRecoversAfterFailure(t *testing.T) {
	src := &fakeSource{err: errors.New("boom")}
	ctrl := newController(src)
	require.NoError(t, ctrl.Submit(context.Background(), "one", nil))

	src.err = nil
	src.fragments = []string{"fine"}
	require.NoError(t, ctrl.Submit(context.Background(), "two", nil))

	msgs := ctrl.Transcript().Messages()
	require.Len(t, msgs, 4)
	assert.True(t, msgs[1].Failed)
	assert.Equal(t, "fine", msgs[3].Content)
	assert.False(t, msgs[3].Failed)
	assert.NoError(t, ctrl.LastError())
}

func TestSubmitRecoversFromSourcePanic(t *testing.T) {
	ctrl := newController(&fakeSource{panicWith: "nil map"})

	require.NotPanics(t, func() {
		require.NoError(t, ctrl.Submit(context.Background(), "hi", nil))
	})

	msgs := ctrl.Transcript().Messages()
	assert.True(t, msgs[1].Failed)
	assert.Contains(t, msgs[1].Content, "nil map")
	assert.False(t, ctrl.Busy())
}

type gatedSource struct{}

func (gatedSource) StreamReply(ctx context.Context, _ []chat.Message, _ string, _ *chat.Attachment, _ style.Style) (*schema.StreamReader[string], error) {
	reader, writer := schema.Pipe[string](2)
	go func() {
		defer writer.Close()
		writer.Send("Par", nil)
		<-ctx.Done()
		writer.Send("tial", nil)
	}()
	return reader, nil
}

func (gatedSource) Reset() {}

func TestCancelKeepsPartialReply(t *testing.T) {
	ctrl := newController(gatedSource{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctrl.Transcript().Subscribe(func(s chatservice.Snapshot) {
		if last, ok := s.Last(); ok && last.Content == "Par" {
			cancel()
		}
	})

	require.NoError(t, ctrl.Submit(ctx, "explain", nil))

	msgs := ctrl.Transcript().Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "Par", msgs[1].Content)
	assert.True(t, msgs[1].Cancelled)
	assert.False(t, msgs[1].Failed)
	assert.ErrorIs(t, ctrl.LastError(), context.Canceled)
	assert.False(t, ctrl.Busy())
}

func TestCancelBeforeAnyFragment(t *testing.T) {
	src := &fakeSource{release: make(chan struct{}), started: make(chan struct{}, 1)}
	ctrl := newController(src)
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		<-src.started
		cancel()
	}()
	require.NoError(t, ctrl.Submit(ctx, "explain", nil))

	msgs := ctrl.Transcript().Messages()
	assert.Equal(t, chatservice.CancelledText, msgs[1].Content)
	assert.True(t, msgs[1].Cancelled)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"validation", chatservice.NewTurnError(chatservice.ErrValidation, "x", nil), chatservice.ErrValidation},
		{"network", chatservice.NewTurnError(chatservice.ErrNetwork, "x", nil), chatservice.ErrNetwork},
		{"deadline", context.DeadlineExceeded, chatservice.ErrNetwork},
		{"empty", chatservice.NewTurnError(chatservice.ErrEmptyResponse, "x", nil), chatservice.ErrEmptyResponse},
		{"configuration", chatservice.NewTurnError(chatservice.ErrConfiguration, "x", nil), chatservice.ErrUpstream},
		{"plain", errors.New("x"), chatservice.ErrUpstream},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, chatservice.Classify(tc.err))
		})
	}
	assert.Nil(t, chatservice.Classify(nil))
}

func TestOnBusyReportsTurnBoundaries(t *testing.T) {
	ctrl := newController(&fakeSource{fragments: []string{"ok"}})

	var mu sync.Mutex
	var seen []bool
	ctrl.OnBusy(func(busy bool) {
		mu.Lock()
		seen = append(seen, busy)
		mu.Unlock()
	})

	require.NoError(t, ctrl.Submit(context.Background(), "q", nil))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false}, seen)
	assert.False(t, ctrl.Busy())
	assert.NoError(t, ctrl.LastError())
}

func TestClearNeverWipesATurnInFlight(t *testing.T) {
	for i := 0; i < 2000; i++ {
		ctrl := newController(&fakeSource{fragments: []string{"ok"}})

		var mu sync.Mutex
		var last []chat.Message
		wipedOpenTurn := false
		ctrl.Transcript().Subscribe(func(s chatservice.Snapshot) {
			mu.Lock()
			defer mu.Unlock()
			if len(s.Messages) == 0 && len(last) > 0 && last[len(last)-1].Content == "" {
				wipedOpenTurn = true
			}
			last = s.Messages
		})

		start := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			_ = ctrl.Submit(context.Background(), "q", nil)
		}()
		go func() {
			defer wg.Done()
			<-start
			ctrl.Clear()
		}()
		close(start)
		wg.Wait()

		mu.Lock()
		wiped := wipedOpenTurn
		mu.Unlock()
		require.False(t, wiped, "iteration %d: clear removed an open placeholder", i)

		n := ctrl.Transcript().Len()
		require.True(t, n == 0 || n == 2, "iteration %d: transcript has %d messages", i, n)
		if n == 2 {
			assert.Equal(t, "ok", ctrl.Transcript().Messages()[1].Content)
		}
	}
}

func TestClearRefusedWhileTurnInFlight(t *testing.T) {
	src := &fakeSource{
		fragments: []string{"answer"},
		release:   make(chan struct{}),
		started:   make(chan struct{}, 1),
	}
	ctrl := newController(src)

	finished := make(chan error, 1)
	go func() { finished <- ctrl.Submit(context.Background(), "q", nil) }()
	<-src.started

	assert.False(t, ctrl.Clear())
	close(src.release)
	require.NoError(t, <-finished)

	msgs := ctrl.Transcript().Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "answer", msgs[1].Content)
	assert.Equal(t, int32(0), src.resets.Load())
}
