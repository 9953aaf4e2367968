package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tempErr struct{ temp bool }

func (e tempErr) Error() string   { return "upstream" }
func (e tempErr) Temporary() bool { return e.temp }

func fastPolicy(attempts int) Policy {
	return Policy{Attempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestRetry_FirstAttemptSucceeds(t *testing.T) {
	calls := 0
	v, err := Retry(context.Background(), fastPolicy(3), func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 1, calls)
}

func TestRetry_RecoversFromTransient(t *testing.T) {
	calls := 0
	var retried []int
	p := fastPolicy(3)
	p.OnRetry = func(attempt int, _ error) { retried = append(retried, attempt) }

	v, err := Retry(context.Background(), p, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, tempErr{temp: true}
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestRetry_StopsAfterAttempts(t *testing.T) {
	calls := 0
	v, err := Retry(context.Background(), fastPolicy(2), func(context.Context) (int, error) {
		calls++
		return 7, tempErr{temp: true}
	})
	require.Error(t, err)
	assert.Zero(t, v)
	assert.Equal(t, 2, calls)
}

func TestRetry_PermanentErrorNotRetried(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(5), func(context.Context) (int, error) {
		calls++
		return 0, tempErr{temp: false}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_CustomRetryable(t *testing.T) {
	sentinel := errors.New("retry me")
	p := fastPolicy(3)
	p.Retryable = func(err error) bool { return errors.Is(err, sentinel) }

	calls := 0
	_, err := Retry(context.Background(), p, func(context.Context) (int, error) {
		calls++
		return 0, sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 3, calls)
}

func TestRetry_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{Attempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}
	p.OnRetry = func(int, error) { cancel() }

	calls := 0
	start := time.Now()
	_, err := Retry(ctx, p, func(context.Context) (int, error) {
		calls++
		return 0, tempErr{temp: true}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPolicy_Delay(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: 350 * time.Millisecond, Factor: 2}.normalize()
	p.Jitter = 0

	assert.Equal(t, 100*time.Millisecond, p.delay(1))
	assert.Equal(t, 200*time.Millisecond, p.delay(2))
	assert.Equal(t, 350*time.Millisecond, p.delay(3))
}

func TestPolicy_DelayJitterBounds(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Factor: 2, Jitter: 0.5}.normalize()
	for i := 0; i < 50; i++ {
		d := p.delay(1)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestDefaultPolicy(t *testing.T) {
	p := Policy{}.normalize()
	assert.Equal(t, 3, p.Attempts)
	assert.Equal(t, 250*time.Millisecond, p.BaseDelay)
	assert.NotNil(t, p.Retryable)
}

func TestLogRetry(t *testing.T) {
	assert.NotPanics(t, func() { LogRetry("geocode")(1, errors.New("x")) })
}
