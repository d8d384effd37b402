package breaker_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymesh/gateway/internal/breaker"
)

func TestTripsAtExactThreshold(t *testing.T) {
	m := breaker.NewManager(breaker.Config{FailureThreshold: 3, ResetTimeout: time.Minute, HalfOpenMaxAttempts: 2})

	m.RecordFailure("p")
	m.RecordFailure("p")
	assert.Equal(t, breaker.Closed, m.GetState("p"), "k-1 failures must not trip")

	m.RecordFailure("p")
	assert.Equal(t, breaker.Open, m.GetState("p"), "exactly k failures must trip")
}

func TestOpenNeverAdmits(t *testing.T) {
	m := breaker.NewManager(breaker.Config{FailureThreshold: 1, ResetTimeout: time.Hour, HalfOpenMaxAttempts: 1})
	m.RecordFailure("p")
	require.Equal(t, breaker.Open, m.GetState("p"))
	assert.False(t, m.Admit("p"))
}

func TestHalfOpenAfterResetTimeout(t *testing.T) {
	m := breaker.NewManager(breaker.Config{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond, HalfOpenMaxAttempts: 2})
	m.RecordFailure("p")
	require.Equal(t, breaker.Open, m.GetState("p"))

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, breaker.HalfOpen, m.GetState("p"))
}

func TestHalfOpenClosesAfterConsecutiveSuccesses(t *testing.T) {
	m := breaker.NewManager(breaker.Config{FailureThreshold: 1, ResetTimeout: time.Millisecond, HalfOpenMaxAttempts: 2})
	m.RecordFailure("p")
	time.Sleep(5 * time.Millisecond)
	require.Equal(t, breaker.HalfOpen, m.GetState("p"))

	require.True(t, m.Admit("p"))
	m.RecordSuccess("p")
	require.True(t, m.Admit("p"))
	m.RecordSuccess("p")

	assert.Equal(t, breaker.Closed, m.GetState("p"))
}

func TestHalfOpenReopensOnFailure(t *testing.T) {
	m := breaker.NewManager(breaker.Config{FailureThreshold: 1, ResetTimeout: time.Millisecond, HalfOpenMaxAttempts: 3})
	m.RecordFailure("p")
	time.Sleep(5 * time.Millisecond)
	require.Equal(t, breaker.HalfOpen, m.GetState("p"))

	m.RecordFailure("p")
	assert.Equal(t, breaker.Open, m.GetState("p"))
}

func TestResetOnClosedIsNoop(t *testing.T) {
	m := breaker.NewManager(breaker.DefaultConfig())
	m.Reset("p")
	assert.Equal(t, breaker.Closed, m.GetState("p"))
	assert.Equal(t, 0, m.Snapshot("p").FailureCount)
}

func TestRecordSuccessOnClosedWithZeroFailuresIsNoop(t *testing.T) {
	m := breaker.NewManager(breaker.DefaultConfig())
	m.RecordSuccess("p")
	snap := m.Snapshot("p")
	assert.Equal(t, 0, snap.FailureCount)
	assert.Equal(t, breaker.Closed, snap.State)
}

func TestHalfOpenAdmitsOnlyUpToMaxAttempts(t *testing.T) {
	m := breaker.NewManager(breaker.Config{FailureThreshold: 1, ResetTimeout: time.Millisecond, HalfOpenMaxAttempts: 2})
	m.RecordFailure("p")
	time.Sleep(5 * time.Millisecond)
	require.Equal(t, breaker.HalfOpen, m.GetState("p"))

	assert.True(t, m.Admit("p"))
	assert.True(t, m.Admit("p"))
	assert.False(t, m.Admit("p"), "third half-open attempt must be denied")
}
