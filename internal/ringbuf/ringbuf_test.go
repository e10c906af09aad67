package ringbuf

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// recorder collects diagnostics for assertions.
type recorder struct {
	mu    sync.Mutex
	diags []Diagnostic
}

func (r *recorder) Report(d Diagnostic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diags = append(r.diags, d)
}

func (r *recorder) byEvent(event string) []Diagnostic {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Diagnostic
	for _, d := range r.diags {
		if d.Event == event {
			out = append(out, d)
		}
	}
	return out
}

func newBuffer[T any](t *testing.T, cfg Config, opts ...Option) *RingBuffer[T] {
	t.Helper()
	rb, err := New[T](cfg, opts...)
	require.NoError(t, err)
	return rb
}

func readAll[T any](rb *RingBuffer[T]) []T {
	var out []T
	for {
		v, ok := rb.Read()
		if !ok {
			return out
		}
		out = append(out, v)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	testCases := []struct {
		name string
		cfg  Config
	}{
		{"zero initial capacity", Config{InitialCapacity: 0, MaxSize: 10, GrowthStep: 2}},
		{"negative initial capacity", Config{InitialCapacity: -1, MaxSize: 10, GrowthStep: 2}},
		{"zero max size", Config{InitialCapacity: 4, MaxSize: 0, GrowthStep: 2}},
		{"zero growth step", Config{InitialCapacity: 4, MaxSize: 10, GrowthStep: 0}},
		{"growth step equals max size", Config{InitialCapacity: 4, MaxSize: 10, GrowthStep: 10}},
		{"growth step above max size", Config{InitialCapacity: 4, MaxSize: 10, GrowthStep: 11}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rb, err := New[int](tc.cfg)
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrInvalidConfig), "expected ErrInvalidConfig, got %v", err)
			require.Nil(t, rb)
		})
	}
}

func TestFIFOOrder(t *testing.T) {
	rb := newBuffer[int](t, Config{InitialCapacity: 4, MaxSize: 1000, GrowthStep: 4})

	want := make([]int, 0, 100)
	for i := 0; i < 100; i++ {
		rb.Write(i)
		want = append(want, i)
	}

	require.Equal(t, want, readAll(rb))
}

func TestReadEmptyIsIdempotent(t *testing.T) {
	rb := newBuffer[string](t, Config{InitialCapacity: 8, MaxSize: 200, GrowthStep: 4})

	rb.Write("x")
	v, ok := rb.Read()
	require.True(t, ok)
	require.Equal(t, "x", v)

	before := rb.Stats()
	for i := 0; i < 5; i++ {
		v, ok := rb.Read()
		require.False(t, ok)
		require.Equal(t, "", v)
	}
	after := rb.Stats()

	require.Equal(t, before.Pending, after.Pending)
	require.Equal(t, before.ReadIndex, after.ReadIndex)
	require.Equal(t, before.WriteIndex, after.WriteIndex)
	require.Equal(t, before.Reads, after.Reads)
}

func TestGrowthPreservesPendingData(t *testing.T) {
	rep := &recorder{}
	rb := newBuffer[int](t, Config{InitialCapacity: 4, MaxSize: 200, GrowthStep: 4}, WithReporter(rep))

	for i := 1; i <= 4; i++ {
		rb.Write(i)
	}
	rb.Write(5)

	require.Equal(t, 8, rb.Cap())
	require.Equal(t, 5, rb.Len())
	require.Len(t, rep.byEvent(EventGrown), 1)

	require.Equal(t, []int{1, 2, 3, 4, 5}, readAll(rb))
	require.Equal(t, 4, rb.Cap(), "storage should shrink back to the initial capacity")
	require.Len(t, rep.byEvent(EventShrunk), 1)
}

func TestGrowthWithWrappedReadRegion(t *testing.T) {
	rb := newBuffer[string](t, Config{InitialCapacity: 4, MaxSize: 200, GrowthStep: 2})

	rb.Write("a")
	rb.Write("b")
	rb.Write("c")
	v, ok := rb.Read()
	require.True(t, ok)
	require.Equal(t, "a", v)

	// d lands in the last slot and the write cursor wraps to 0.
	rb.Write("d")
	stats := rb.Stats()
	require.Equal(t, 0, stats.WriteIndex)
	require.Equal(t, 1, stats.ReadIndex)

	// Full again: the grow must shift the read cursor past the inserted slots.
	rb.Write("e")
	stats = rb.Stats()
	require.Equal(t, 6, stats.Capacity)
	require.Equal(t, 3, stats.ReadIndex)
	require.Equal(t, 1, stats.WriteIndex)

	require.Equal(t, []string{"b", "c", "d", "e"}, readAll(rb))
}

func TestOverflowDropsOldest(t *testing.T) {
	rep := &recorder{}
	cfg := Config{InitialCapacity: 4, MaxSize: 10, GrowthStep: 2}
	rb := newBuffer[int](t, cfg, WithReporter(rep), WithSource("test-buffer"))

	for i := 1; i <= cfg.MaxSize+1; i++ {
		rb.Write(i)
	}

	stats := rb.Stats()
	require.Equal(t, uint64(cfg.GrowthStep), stats.Drops)
	require.Equal(t, cfg.MaxSize-cfg.GrowthStep+1, stats.Pending)

	dropped := rep.byEvent(EventDropped)
	require.Len(t, dropped, cfg.GrowthStep, "one warning per dropped item")
	for _, d := range dropped {
		require.Equal(t, LevelWarning, d.Level)
		require.Equal(t, "test-buffer", d.Source)
		require.Equal(t, VerbosityDrop, d.Verbosity)
		require.Equal(t, "max buffer size reached, 2 messages will not be logged", d.Message)
	}

	require.Equal(t, []int{3, 4, 5, 6, 7, 8, 9, 10, 11}, readAll(rb))
}

func TestPendingNeverExceedsMaxSize(t *testing.T) {
	cfg := Config{InitialCapacity: 2, MaxSize: 7, GrowthStep: 3}
	rb := newBuffer[int](t, cfg)

	for i := 0; i < 100; i++ {
		rb.Write(i)
		require.LessOrEqual(t, rb.Len(), cfg.MaxSize)
		require.LessOrEqual(t, rb.Len(), rb.Cap()-1)
	}

	got := readAll(rb)
	for i := 1; i < len(got); i++ {
		require.Less(t, got[i-1], got[i], "surviving items must stay in write order")
	}
	require.Equal(t, 99, got[len(got)-1])
}

func TestCapacityFloorAfterDrain(t *testing.T) {
	cfg := Config{InitialCapacity: 3, MaxSize: 50, GrowthStep: 5}
	rb := newBuffer[int](t, cfg)

	for round := 0; round < 3; round++ {
		for i := 0; i < 20+round; i++ {
			rb.Write(i)
		}
		require.Greater(t, rb.Cap(), cfg.InitialCapacity)
		readAll(rb)

		stats := rb.Stats()
		require.Equal(t, cfg.InitialCapacity, stats.Capacity)
		require.Equal(t, 0, stats.ReadIndex)
		require.Equal(t, 0, stats.WriteIndex)
	}
}

func TestDrainCallbackFiresOncePerWrite(t *testing.T) {
	rb := newBuffer[int](t, Config{InitialCapacity: 2, MaxSize: 5, GrowthStep: 2})

	var calls int
	rb.RegisterDrainCallback(func() { calls++ })

	for i := 0; i < 20; i++ {
		rb.Write(i)
	}

	require.Equal(t, 20, calls)
	require.NotZero(t, rb.Stats().Drops, "the run should have exercised forced drops")
}

func TestRegisterDrainCallbackReplacesPrevious(t *testing.T) {
	var first, second int
	rb := newBuffer[int](t, Config{InitialCapacity: 4, MaxSize: 10, GrowthStep: 2},
		WithDrainCallback(func() { first++ }))

	rb.Write(1)
	rb.RegisterDrainCallback(func() { second++ })
	rb.Write(2)
	rb.Write(3)

	require.Equal(t, 1, first)
	require.Equal(t, 2, second)

	rb.RegisterDrainCallback(nil)
	rb.Write(4)
	require.Equal(t, 2, second)
}

func TestDrainCallbackCanRead(t *testing.T) {
	rb := newBuffer[int](t, Config{InitialCapacity: 4, MaxSize: 10, GrowthStep: 2})

	var got []int
	rb.RegisterDrainCallback(func() {
		if v, ok := rb.Read(); ok {
			got = append(got, v)
		}
	})

	for i := 0; i < 5; i++ {
		rb.Write(i)
		require.Equal(t, 0, rb.Len())
	}
	require.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestScenarioWriteThreeReadThree(t *testing.T) {
	rb := newBuffer[string](t, Config{InitialCapacity: 8, MaxSize: 200, GrowthStep: 4})

	rb.Write("A")
	rb.Write("B")
	rb.Write("C")

	for _, want := range []string{"A", "B", "C"} {
		v, ok := rb.Read()
		require.True(t, ok)
		require.Equal(t, want, v)
	}
	_, ok := rb.Read()
	require.False(t, ok)

	stats := rb.Stats()
	require.Equal(t, 8, stats.Capacity)
	require.Equal(t, 0, stats.ReadIndex)
	require.Equal(t, 0, stats.WriteIndex)
	require.Equal(t, uint64(3), stats.Writes)
	require.Equal(t, uint64(3), stats.Reads)
}

func TestSingleSlotInitialCapacity(t *testing.T) {
	rb := newBuffer[int](t, Config{InitialCapacity: 1, MaxSize: 4, GrowthStep: 1})

	rb.Write(7)
	require.Equal(t, 2, rb.Cap())

	v, ok := rb.Read()
	require.True(t, ok)
	require.Equal(t, 7, v)
	require.Equal(t, 1, rb.Cap())
}

func TestConcurrentProducersSingleConsumer(t *testing.T) {
	const (
		producers = 4
		perWriter = 500
	)

	type item struct {
		producer int
		seq      int
	}

	rb := newBuffer[item](t, Config{InitialCapacity: 8, MaxSize: producers * perWriter, GrowthStep: 8})

	wake := make(chan struct{}, 1)
	rb.RegisterDrainCallback(func() {
		select {
		case wake <- struct{}{}:
		default:
		}
	})

	var delivered atomic.Int64
	lastSeq := make([]int, producers)
	for i := range lastSeq {
		lastSeq[i] = -1
	}
	orderErr := make(chan string, 1)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-done:
				return
			case <-wake:
			}
			for {
				it, ok := rb.Read()
				if !ok {
					break
				}
				if it.seq <= lastSeq[it.producer] {
					select {
					case orderErr <- "out of order item":
					default:
					}
				}
				lastSeq[it.producer] = it.seq
				delivered.Add(1)
			}
		}
	}()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for s := 0; s < perWriter; s++ {
				rb.Write(item{producer: p, seq: s})
			}
		}(p)
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return delivered.Load() == producers*perWriter
	}, 5*time.Second, 10*time.Millisecond)
	close(done)

	select {
	case msg := <-orderErr:
		t.Fatal(msg)
	default:
	}
	require.Zero(t, rb.Stats().Drops)
}
