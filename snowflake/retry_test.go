package snowflake

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

// scriptedGenerator answers Next from a function of the call index.
type scriptedGenerator struct {
	mu    sync.Mutex
	calls int
	next  func(call int) (ID, error)
}

func (g *scriptedGenerator) Next() (ID, error) {
	g.mu.Lock()
	call := g.calls
	g.calls++
	g.mu.Unlock()
	return g.next(call)
}

func (g *scriptedGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func overflowUntil(n int) func(int) (ID, error) {
	return func(call int) (ID, error) {
		if call < n {
			return 0, newSequenceOverflowError(10, 4095, 1, 4095)
		}
		return ID(1000 + call), nil
	}
}

func TestGenerateWithRetry_Success(t *testing.T) {
	gen := &scriptedGenerator{next: overflowUntil(0)}

	id, err := GenerateWithRetry(context.Background(), gen, DefaultRetryPolicy())
	if err != nil {
		t.Fatalf("GenerateWithRetry() error = %v", err)
	}
	if id != 1000 || gen.Calls() != 1 {
		t.Errorf("GenerateWithRetry() = %d after %d calls, want 1000 after 1", id, gen.Calls())
	}
}

func TestGenerateWithRetry_RecoversFromOverflow(t *testing.T) {
	gen := &scriptedGenerator{next: overflowUntil(3)}

	id, err := GenerateWithRetry(context.Background(), gen, DefaultRetryPolicy())
	if err != nil {
		t.Fatalf("GenerateWithRetry() error = %v", err)
	}
	if id != 1003 || gen.Calls() != 4 {
		t.Errorf("GenerateWithRetry() = %d after %d calls, want 1003 after 4", id, gen.Calls())
	}
}

func TestGenerateWithRetry_Exhausted(t *testing.T) {
	tests := []struct {
		name       string
		maxRetries int
	}{
		{"default budget", DefaultMaxRetries},
		{"no retries", 0},
		{"one retry", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &scriptedGenerator{next: overflowUntil(1 << 30)}
			policy := RetryPolicy{MaxRetries: tt.maxRetries, Delay: time.Millisecond}

			_, err := GenerateWithRetry(context.Background(), gen, policy)
			if !errors.Is(err, ErrRetriesExhausted) {
				t.Fatalf("GenerateWithRetry() error = %v, want ErrRetriesExhausted", err)
			}
			if KindOf(err) != KindRetriesExhausted {
				t.Errorf("KindOf() = %v, want retries_exhausted", KindOf(err))
			}
			re, ok := GetRetryError(err)
			if !ok {
				t.Fatalf("error should be a RetryError, got %T", err)
			}
			if re.Attempts != tt.maxRetries+1 || gen.Calls() != tt.maxRetries+1 {
				t.Errorf("Attempts = %d, calls = %d, want %d", re.Attempts, gen.Calls(), tt.maxRetries+1)
			}
			if !errors.Is(err, ErrSequenceOverflow) {
				t.Error("RetryError should carry the last sequence overflow")
			}
		})
	}
}

func TestGenerateWithRetry_NonRetryableErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"clock regression", newClockError(5, 10, 1), ErrClockRegression},
		{"timestamp overflow", newTimestampOverflowError(-5, 1, 1<<41-1), ErrTimestampOverflow},
		{"unknown", errors.New("boom"), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &scriptedGenerator{next: func(int) (ID, error) { return 0, tt.err }}

			_, err := GenerateWithRetry(context.Background(), gen, DefaultRetryPolicy())
			if err != tt.err {
				t.Errorf("GenerateWithRetry() error = %v, want the original %v", err, tt.err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("GenerateWithRetry() error = %v, want %v", err, tt.want)
			}
			if IsRetryError(err) {
				t.Error("non-retryable errors must not become RetryError")
			}
			if gen.Calls() != 1 {
				t.Errorf("calls = %d, want 1", gen.Calls())
			}
		})
	}
}

func TestGenerateWithRetry_ContextCanceledDuringWait(t *testing.T) {
	gen := &scriptedGenerator{next: overflowUntil(1 << 30)}
	policy := RetryPolicy{MaxRetries: 3, Delay: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	start := time.Now()
	_, err := GenerateWithRetry(ctx, gen, policy)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("GenerateWithRetry() error = %v, want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("GenerateWithRetry() took %v after cancel", elapsed)
	}
	if gen.Calls() != 1 {
		t.Errorf("calls = %d, want 1", gen.Calls())
	}
}

func TestGenerateWithRetry_InvalidPolicy(t *testing.T) {
	gen := &scriptedGenerator{next: overflowUntil(0)}

	for _, p := range []RetryPolicy{{MaxRetries: -1}, {Delay: -time.Millisecond}} {
		_, err := GenerateWithRetry(context.Background(), gen, p)
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("GenerateWithRetry(%+v) error = %v, want ErrInvalidConfig", p, err)
		}
	}
	if gen.Calls() != 0 {
		t.Errorf("calls = %d, want 0 for an invalid policy", gen.Calls())
	}
}

// TestGenerateWithRetry_MockClockWait drives the retry delay from a mock
// clock: nothing happens until the mock is advanced.
func TestGenerateWithRetry_MockClockWait(t *testing.T) {
	mock := clock.NewMock()
	gen := &scriptedGenerator{next: overflowUntil(2)}
	policy := RetryPolicy{MaxRetries: 5, Delay: 10 * time.Millisecond, Clock: mock}

	type result struct {
		id  ID
		err error
	}
	done := make(chan result, 1)
	go func() {
		id, err := GenerateWithRetry(context.Background(), gen, policy)
		done <- result{id, err}
	}()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case r := <-done:
			if r.err != nil {
				t.Fatalf("GenerateWithRetry() error = %v", r.err)
			}
			if r.id != 1002 {
				t.Errorf("GenerateWithRetry() = %d, want 1002", r.id)
			}
			return
		case <-deadline:
			t.Fatal("GenerateWithRetry() did not finish")
		default:
			mock.Add(time.Millisecond)
		}
	}
}

// steppingClock advances the mock by step after every `every` reads of Now.
type steppingClock struct {
	*clock.Mock
	mu    sync.Mutex
	reads int
	every int
	step  time.Duration
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads++
	if c.reads%c.every == 0 {
		c.Mock.Add(c.step)
	}
	return c.Mock.Now()
}

// TestGenerateWithRetry_NodeOverflowResolves: a node that exhausts its
// sequence recovers once the clock reaches the next millisecond.
func TestGenerateWithRetry_NodeOverflowResolves(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.UnixMilli(Epoch + 100))
	maxSeq := LayoutExtreme.MaxSequence()

	// NewNode reads the clock once, then every maxSeq+3 further reads
	// move the clock forward.
	sc := &steppingClock{Mock: mock, every: int(maxSeq) + 3, step: time.Millisecond}
	node, err := NewNode(NodeConfig{NodeID: 2, Epoch: Epoch, Layout: LayoutExtreme, Clock: sc})
	if err != nil {
		t.Fatalf("NewNode() error = %v", err)
	}

	ctx := context.Background()
	policy := RetryPolicy{MaxRetries: 5, Delay: time.Millisecond}
	seen := make(map[ID]bool)
	for i := int64(0); i < 3*(maxSeq+1); i++ {
		id, err := GenerateWithRetry(ctx, node, policy)
		if err != nil {
			t.Fatalf("GenerateWithRetry() #%d error = %v", i, err)
		}
		if seen[id] {
			t.Fatalf("duplicate ID %d", id)
		}
		seen[id] = true
	}
	if node.Metrics().SequenceOverflows == 0 {
		t.Error("expected at least one sequence overflow to be retried")
	}
}

func TestRetryPolicy_Default(t *testing.T) {
	p := DefaultRetryPolicy()
	if p.MaxRetries != 5 || p.Delay != time.Millisecond {
		t.Errorf("DefaultRetryPolicy() = %+v, want 5 retries / 1ms", p)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}
