package buffer

import (
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logview/internal/app/errors"
	"logview/internal/config"
)

type recorder struct {
	mu      sync.Mutex
	batches [][]int
}

func (r *recorder) add(batch []int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.batches = append(r.batches, batch)
}

func (r *recorder) get() [][]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([][]int(nil), r.batches...)
}

func Test_New(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		expected error
	}{
		{name: "Timeout only", cfg: Config{Timeout: time.Second}},
		{name: "Length only", cfg: Config{Length: 10}},
		{name: "Both", cfg: Config{Timeout: time.Second, Length: 10}},
		{name: "Neither", cfg: Config{}, expected: errors.ErrBufferNotConfigured},
		{name: "Negative timeout", cfg: Config{Timeout: -time.Second, Length: 1}, expected: errors.ErrInvalidBufferDelay},
		{name: "Negative length", cfg: Config{Length: -1}, expected: errors.ErrInvalidBufferLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := New[int](tt.cfg, func([]int) {})

			if tt.expected != nil {
				assert.ErrorIs(t, err, tt.expected)
				assert.Nil(t, b)

				return
			}

			require.NoError(t, err)
			assert.NotNil(t, b)
		})
	}
}

func Test_FromConfig(t *testing.T) {
	cfg := FromConfig(config.DefaultConfig().Buffer)
	assert.Equal(t, Config{Timeout: config.BufferTimeout, Length: config.BufferLength}, cfg)
}

func Test_Buffer_FlushOnLength(t *testing.T) {
	rec := &recorder{}

	b, err := New(Config{Length: 3}, rec.add)
	require.NoError(t, err)

	for i := 1; i <= 7; i++ {
		b.Add(i)
	}

	assert.Equal(t, [][]int{{1, 2, 3}, {4, 5, 6}}, rec.get())
	assert.Equal(t, 1, b.Len())
}

func Test_Buffer_FlushOnTimeout(t *testing.T) {
	rec := &recorder{}

	b, err := New(Config{Timeout: 30 * time.Millisecond}, rec.add)
	require.NoError(t, err)

	b.Add(1)
	b.Add(2)

	assert.Empty(t, rec.get())

	assert.Eventually(t, func() bool {
		return len(rec.get()) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, [][]int{{1, 2}}, rec.get())
	assert.Equal(t, 0, b.Len())
}

func Test_Buffer_TimerNotResetByLaterItems(t *testing.T) {
	rec := &recorder{}

	b, err := New(Config{Timeout: 60 * time.Millisecond}, rec.add)
	require.NoError(t, err)

	start := time.Now()
	b.Add(1)
	time.Sleep(30 * time.Millisecond)
	b.Add(2)

	assert.Eventually(t, func() bool {
		return len(rec.get()) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Less(t, time.Since(start), 200*time.Millisecond)
	assert.Equal(t, [][]int{{1, 2}}, rec.get())
}

func Test_Buffer_LengthFlushCancelsTimer(t *testing.T) {
	rec := &recorder{}

	b, err := New(Config{Timeout: 30 * time.Millisecond, Length: 2}, rec.add)
	require.NoError(t, err)

	b.Add(1)
	b.Add(2)

	time.Sleep(80 * time.Millisecond)

	assert.Equal(t, [][]int{{1, 2}}, rec.get())
}

func Test_Buffer_Flush(t *testing.T) {
	rec := &recorder{}

	b, err := New(Config{Timeout: time.Hour}, rec.add)
	require.NoError(t, err)

	b.Flush()
	assert.Empty(t, rec.get())

	b.Add(1)
	b.Flush()
	b.Flush()

	assert.Equal(t, [][]int{{1}}, rec.get())
}

func Test_Buffer_Clear(t *testing.T) {
	rec := &recorder{}

	b, err := New(Config{Timeout: 20 * time.Millisecond}, rec.add)
	require.NoError(t, err)

	b.Add(1)
	b.Add(2)
	b.Clear()

	time.Sleep(60 * time.Millisecond)

	assert.Empty(t, rec.get())
	assert.Equal(t, 0, b.Len())

	b.Add(3)

	assert.Eventually(t, func() bool {
		return len(rec.get()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, [][]int{{3}}, rec.get())
}

func Test_Buffer_ConcurrentAdd(t *testing.T) {
	rec := &recorder{}

	b, err := New(Config{Timeout: 10 * time.Millisecond, Length: 16}, rec.add)
	require.NoError(t, err)

	var wg sync.WaitGroup

	for w := 0; w < 8; w++ {
		wg.Add(1)

		go func(w int) {
			defer wg.Done()

			for i := 0; i < 100; i++ {
				b.Add(w*100 + i)
			}
		}(w)
	}

	wg.Wait()
	b.Flush()

	seen := make(map[int]bool)

	for _, batch := range rec.get() {
		assert.NotEmpty(t, batch)
		assert.LessOrEqual(t, len(batch), 16)

		for _, v := range batch {
			assert.False(t, seen[v], "item %d delivered twice", v)
			seen[v] = true
		}
	}

	assert.Len(t, seen, 800)
}

func Test_Buffer_LengthFlushAtomicity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("n adds with length n call back exactly once with n items", prop.ForAll(
		func(n int) bool {
			rec := &recorder{}

			b, err := New(Config{Timeout: time.Hour, Length: n}, rec.add)
			if err != nil {
				return false
			}

			for i := 0; i < n; i++ {
				b.Add(i)
			}

			batches := rec.get()

			return len(batches) == 1 && len(batches[0]) == n && b.Len() == 0
		},
		gen.IntRange(1, 500),
	))

	properties.Property("every item is delivered exactly once", prop.ForAll(
		func(length, count int) bool {
			rec := &recorder{}

			b, err := New(Config{Length: length}, rec.add)
			if err != nil {
				return false
			}

			for i := 0; i < count; i++ {
				b.Add(i)
			}

			b.Flush()

			next := 0

			for _, batch := range rec.get() {
				if len(batch) == 0 || len(batch) > length {
					return false
				}

				for _, v := range batch {
					if v != next {
						return false
					}

					next++
				}
			}

			return next == count
		},
		gen.IntRange(1, 50),
		gen.IntRange(0, 300),
	))

	properties.TestingRun(t)
}
