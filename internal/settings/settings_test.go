package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterPreservesExistingValue(t *testing.T) {
	s := NewStore()
	s.Register("console", "batchMax", 100, IntConverter{})
	require.NoError(t, s.Set("console", "batchMax", "250"))

	// A second register call with a different default must not clobber
	// the value already set.
	s.Register("console", "batchMax", 100, IntConverter{})
	v, ok := s.Get("console", "batchMax")
	require.True(t, ok)
	assert.Equal(t, 250, v)
}

func TestGetAbsentReturnsFalse(t *testing.T) {
	s := NewStore()
	_, ok := s.Get("nope", "nope")
	assert.False(t, ok)
}

func TestSetInvalidRaisesConfigError(t *testing.T) {
	s := NewStore()
	s.Register("console", "workers", 1, IntConverter{})
	err := s.Set("console", "workers", "not-a-number")
	require.Error(t, err)
}

func TestSubscribeFiresOnChange(t *testing.T) {
	s := NewStore()
	p := s.Register("file", "path", "/tmp/a.log", StringConverter{})

	var got any
	p.Subscribe(DirectExecutor{}, func(v any) { got = v })

	require.NoError(t, s.Set("file", "path", "/tmp/b.log"))
	assert.Equal(t, "/tmp/b.log", got)
}

func TestRetargetCarriesSubscribersAcrossSwap(t *testing.T) {
	s1 := NewStore()
	p := s1.Register("file", "path", "/tmp/a.log", StringConverter{})

	var got any
	p.Subscribe(DirectExecutor{}, func(v any) { got = v })

	s2 := NewStore()
	s2.Register("file", "path", "/tmp/a.log", StringConverter{})
	p.Retarget(s2)

	require.NoError(t, s2.Set("file", "path", "/tmp/new.log"))
	assert.Equal(t, "/tmp/new.log", got)

	// Get through the proxy now resolves against s2, not s1.
	v, ok := p.Get()
	require.True(t, ok)
	assert.Equal(t, "/tmp/new.log", v)
}

func TestSubscriberCanReenterStoreWithoutDeadlock(t *testing.T) {
	s := NewStore()
	p := s.Register("console", "level", "Info", StringConverter{})

	var readBack any
	var readOk bool
	done := make(chan struct{})
	p.Subscribe(DirectExecutor{}, func(v any) {
		// Calling back into the store from inside the callback must not
		// deadlock on the same store's lock.
		readBack, readOk = p.Get()
		close(done)
	})

	require.NoError(t, s.Set("console", "level", "Warn"))

	select {
	case <-done:
	default:
		t.Fatal("subscriber callback did not run")
	}
	require.True(t, readOk)
	assert.Equal(t, "Warn", readBack)
}
