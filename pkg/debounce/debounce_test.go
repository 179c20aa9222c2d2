package debounce

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type recordingPublisher struct {
	mu     sync.Mutex
	sent   []string
	edits  []string
	sendFn func(ctx context.Context, target, text string) (string, error)
}

func (p *recordingPublisher) Send(ctx context.Context, target, text string) (string, error) {
	if p.sendFn != nil {
		return p.sendFn(ctx, target, text)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, text)
	return "handle-1", nil
}

func (p *recordingPublisher) Edit(ctx context.Context, target, handle, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.edits = append(p.edits, text)
	return nil
}

func (p *recordingPublisher) editCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.edits)
}

func (p *recordingPublisher) lastEdit() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.edits) == 0 {
		return ""
	}
	return p.edits[len(p.edits)-1]
}

func TestSendNewMessageReturnsHandle(t *testing.T) {
	pub := &recordingPublisher{}
	d := New(Config{MinEditGap: 10 * time.Millisecond, RateBudget: 10, RateWindow: time.Second}, pub)

	handle, err := d.SendNewMessage(context.Background(), "chat-1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "handle-1", handle)
}

func TestEnqueueEditCoalescesRapidUpdatesToLatestText(t *testing.T) {
	pub := &recordingPublisher{}
	d := New(Config{MinEditGap: 50 * time.Millisecond, RateBudget: 100, RateWindow: time.Second}, pub)

	ctx := context.Background()
	d.EnqueueEdit(ctx, "chat-1", "handle-1", "v1")
	d.EnqueueEdit(ctx, "chat-1", "handle-1", "v2")
	d.EnqueueEdit(ctx, "chat-1", "handle-1", "v3")

	require.Eventually(t, func() bool {
		return pub.editCount() >= 1
	}, time.Second, 5*time.Millisecond)

	// Give the coalescing window time to settle so only the final queued
	// text survives, not every intermediate value.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, "v3", pub.lastEdit())
}

func TestClassifyErrorTreatsTimeoutAsTransient(t *testing.T) {
	err := &net.DNSError{IsTimeout: true}
	assert.Equal(t, Transient, ClassifyError(err))
}

func TestClassifyErrorTreatsRateLimitedAsTransient(t *testing.T) {
	err := &RateLimitedError{Err: errors.New("429")}
	assert.Equal(t, Transient, ClassifyError(err))
}

func TestClassifyErrorTreatsServerErrorAsTransient(t *testing.T) {
	err := &ServerError{Err: errors.New("500")}
	assert.Equal(t, Transient, ClassifyError(err))
}

func TestClassifyErrorDefaultsToPermanent(t *testing.T) {
	assert.Equal(t, Permanent, ClassifyError(errors.New("bad request")))
}

func TestSendNewMessageRetriesTransientThenSucceeds(t *testing.T) {
	attempts := 0
	pub := &recordingPublisher{
		sendFn: func(ctx context.Context, target, text string) (string, error) {
			attempts++
			if attempts < 2 {
				return "", &ServerError{Err: errors.New("temporary")}
			}
			return "handle-2", nil
		},
	}
	d := &Debouncer{
		cfg:       Config{MinEditGap: time.Millisecond, RateBudget: 100, RateWindow: time.Second},
		limiter:   rate.NewLimiter(rate.Inf, 1),
		publisher: pub,
		logger:    slog.Default(),
		handles:   make(map[string]*handleQueue),
	}

	handle, err := d.publishWithRetry(context.Background(), func(ctx context.Context) (string, error) {
		return pub.Send(ctx, "chat-1", "hi")
	})
	require.NoError(t, err)
	assert.Equal(t, "handle-2", handle)
	assert.Equal(t, 2, attempts)
}
