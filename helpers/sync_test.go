package helpers

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFoldErrors(t *testing.T) {
	t.Parallel()

	assert.NoError(t, FoldErrors(nil))
	assert.NoError(t, FoldErrors([]error{nil, nil}))
	err := FoldErrors([]error{fmt.Errorf("port"), nil, fmt.Errorf("host")})
	require.Error(t, err)
	assert.Equal(t, "port\nhost", err.Error())

	lone := &os.PathError{Op: "open", Path: "/dev/ttyUSB0", Err: os.ErrNotExist}
	err = FoldErrors([]error{nil, lone})
	var pe *os.PathError
	require.True(t, errors.As(err, &pe), "single error keeps its type")
	assert.Equal(t, "/dev/ttyUSB0", pe.Path)
}

func TestFirstError(t *testing.T) {
	t.Parallel()

	var f FirstError
	assert.NoError(t, f.Err())
	assert.False(t, f.Set(nil))

	var wg sync.WaitGroup
	first := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e := fmt.Errorf("e%d", i)
			if f.Set(e) {
				first <- e
			}
		}(i)
	}
	wg.Wait()
	close(first)
	require.Len(t, first, 1)
	assert.Equal(t, <-first, f.Err())
}

func TestWithLockError(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	n := 0
	WithLock(&mu, func() { n++ })
	err := WithLockError(&mu, func() error { n++; return fmt.Errorf("fail") })
	assert.EqualError(t, err, "fail")
	assert.Equal(t, 2, n)
	// unlocked after both
	assert.True(t, mu.TryLock())
}
