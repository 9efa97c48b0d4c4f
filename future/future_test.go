package future

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompleteOnce(t *testing.T) {
	f := New[int]()
	assert.False(t, f.IsCompleted())

	assert.True(t, f.Complete(1))
	assert.False(t, f.Complete(2))
	assert.False(t, f.Fail(errors.New("late")))
	assert.True(t, f.IsCompleted())

	v, err := f.Result()
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	select {
	case <-f.Done():
	default:
		t.Fatal("Done not closed after completion")
	}
}

func TestConcurrentCompletersOneWins(t *testing.T) {
	f := New[int]()
	var wg sync.WaitGroup
	wins := make(chan int, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if f.Complete(i) {
				wins <- i
			}
		}(i)
	}
	wg.Wait()
	close(wins)
	require.Len(t, wins, 1)
	v, _ := f.Result()
	assert.Equal(t, <-wins, v)
}

func TestWaitGivesUpAndReleases(t *testing.T) {
	f := New[string]()
	released := 0
	f.OnRelease(func() { released++ })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.Wait(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, 1, released)
	assert.True(t, f.IsCompleted())

	assert.False(t, f.Complete("too late"), "a released future stays failed")
}

func TestWaitReturnsValue(t *testing.T) {
	f := New[string]()
	go func() {
		time.Sleep(5 * time.Millisecond)
		f.Complete("ok")
	}()
	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestReleaseNotCalledAfterCompletion(t *testing.T) {
	f := New[int]()
	f.OnRelease(func() { t.Fatal("release after completion") })
	f.Complete(3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	v, err := f.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestOnCompleteRunsOnceEitherWay(t *testing.T) {
	f := New[int]()
	var got []int
	f.OnComplete(func(v int, _ error) { got = append(got, v) })
	f.Complete(5)
	f.OnComplete(func(v int, _ error) { got = append(got, v*10) })
	assert.Equal(t, []int{5, 50}, got)
}

func TestMap(t *testing.T) {
	f := New[int]()
	s := Map(f, func(v int) (string, error) { return strconv.Itoa(v), nil })
	f.Complete(42)
	v, err := s.Result()
	require.NoError(t, err)
	assert.Equal(t, "42", v)

	boom := errors.New("boom")
	g := New[int]()
	m := Map(g, func(v int) (int, error) { return v, nil })
	g.Fail(boom)
	_, err = m.Result()
	assert.Equal(t, boom, err)

	h := Completed(1)
	bad := Map(h, func(int) (int, error) { return 0, boom })
	_, err = bad.Result()
	assert.Equal(t, boom, err)
}

func TestMapReleasePropagates(t *testing.T) {
	f := New[int]()
	released := false
	f.OnRelease(func() { released = true })
	m := Map(f, func(v int) (int, error) { return v, nil })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Wait(ctx)
	assert.Error(t, err)
	assert.True(t, released)
	assert.True(t, f.IsCompleted())
}
