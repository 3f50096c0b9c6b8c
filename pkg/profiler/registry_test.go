package profiler

import (
	"fmt"
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequenceIDs(ids ...string) func() string {
	var mu sync.Mutex
	i := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		id := ids[i%len(ids)]
		i++
		return id
	}
}

func TestRegistry_CreateListTerminate(t *testing.T) {
	reg := NewRegistry(WithScheme("store"), WithIDGenerator(sequenceIDs("abc123")))

	sess := reg.Create()
	assert.Equal(t, Session{ID: "abc123", Location: "store://abc123/"}, sess)

	assert.Equal(t, []Session{{ID: "abc123", Location: "store://abc123/"}}, reg.List())

	assert.True(t, reg.Terminate("abc123"))
	assert.Empty(t, reg.List())
}

func TestRegistry_DefaultLocation(t *testing.T) {
	reg := NewRegistry()

	sess := reg.Create()
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}$`), sess.ID)
	assert.Equal(t, "s3://"+sess.ID+"/", sess.Location)
}

func TestRegistry_UniqueIDs(t *testing.T) {
	reg := NewRegistry()

	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		sess := reg.Create()
		_, dup := seen[sess.ID]
		require.False(t, dup, "duplicate id %s", sess.ID)
		seen[sess.ID] = struct{}{}
	}
	assert.Equal(t, 1000, reg.Count())
}

func TestRegistry_IDsNotReusedAfterTerminate(t *testing.T) {
	reg := NewRegistry(WithIDGenerator(sequenceIDs("dup", "dup", "fresh")))

	first := reg.Create()
	require.True(t, reg.Terminate(first.ID))

	second := reg.Create()
	assert.Equal(t, "fresh", second.ID)
}

func TestRegistry_DescribeRoundTrip(t *testing.T) {
	reg := NewRegistry()
	created := reg.Create()

	got, err := reg.Describe(created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	require.True(t, reg.Terminate(created.ID))

	_, err = reg.Describe(created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), created.ID)
}

func TestRegistry_TerminateTwice(t *testing.T) {
	reg := NewRegistry()
	sess := reg.Create()

	assert.True(t, reg.Terminate(sess.ID))
	assert.False(t, reg.Terminate(sess.ID))
	assert.False(t, reg.Terminate("never-existed"))
}

func TestRegistry_Observer(t *testing.T) {
	var events []Event
	reg := NewRegistry(WithObserver(func(ev Event) {
		events = append(events, ev)
	}))

	sess := reg.Create()
	reg.Terminate(sess.ID)
	reg.Terminate(sess.ID)

	require.Len(t, events, 2)
	assert.Equal(t, EventCreated, events[0].Type)
	assert.Equal(t, 1, events[0].Live)
	assert.Equal(t, EventTerminated, events[1].Type)
	assert.Equal(t, sess, events[1].Session)
	assert.Equal(t, 0, events[1].Live)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	reg := NewRegistry()

	const workers = 16
	const perWorker = 50

	var wg sync.WaitGroup
	ids := make(chan string, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				sess := reg.Create()
				ids <- sess.ID
				_ = reg.List()
				_, err := reg.Describe(sess.ID)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
	close(ids)

	assert.Equal(t, workers*perWorker, reg.Count())

	var twg sync.WaitGroup
	for id := range ids {
		twg.Add(1)
		go func(id string) {
			defer twg.Done()
			assert.True(t, reg.Terminate(id), fmt.Sprintf("terminate %s", id))
		}(id)
	}
	twg.Wait()
	assert.Equal(t, 0, reg.Count())
}
