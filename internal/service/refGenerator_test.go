package service

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"

	"github.com/ds124wfegd/bookit/internal/entity"
	"github.com/ds124wfegd/bookit/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var refPattern = regexp.MustCompile(`^BK[0-9A-Z]{6}$`)

type setChecker struct {
	mu    sync.Mutex
	taken map[string]bool
	calls int
}

func newSetChecker(refs ...string) *setChecker {
	c := &setChecker{taken: make(map[string]bool)}
	for _, ref := range refs {
		c.taken[ref] = true
	}
	return c
}

func (c *setChecker) RefExists(ctx context.Context, ref string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.taken[ref], nil
}

func (c *setChecker) add(ref string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.taken[ref] = true
}

// zeroReader всегда отдаёт нулевые байты
type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

// highThenZero returns only rejected bytes on the first read.
type highThenZero struct{ reads int }

func (r *highThenZero) Read(p []byte) (int, error) {
	r.reads++
	for i := range p {
		if r.reads == 1 {
			p[i] = 0xFF
		} else {
			p[i] = 0
		}
	}
	return len(p), nil
}

func TestCandidateFormat(t *testing.T) {
	g := NewRefGenerator(newSetChecker(), 0, testPolicy)

	for i := 0; i < 1000; i++ {
		ref, err := g.Candidate()
		require.NoError(t, err)
		assert.Regexp(t, refPattern, ref)
	}
	assert.Equal(t, DefaultRefTries, g.Attempts())
}

func TestCandidateRejectsBiasedBytes(t *testing.T) {
	reader := &highThenZero{}
	g := NewRefGenerator(newSetChecker(), 5, testPolicy)
	g.random = reader

	ref, err := g.Candidate()
	require.NoError(t, err)
	assert.Equal(t, "BK000000", ref)
	assert.Equal(t, 2, reader.reads)
}

func TestGenerateUniqueNeverRepeats(t *testing.T) {
	checker := newSetChecker()
	g := NewRefGenerator(checker, 5, testPolicy)

	for i := 0; i < 100000; i++ {
		ref, err := g.GenerateUnique(context.Background())
		require.NoError(t, err)
		require.False(t, checker.taken[ref], "duplicate reference %s", ref)
		checker.add(ref)
	}
}

func TestGenerateUniqueExhausted(t *testing.T) {
	checker := newSetChecker("BK000000")
	g := NewRefGenerator(checker, 5, testPolicy)
	g.random = zeroReader{}

	ref, err := g.GenerateUnique(context.Background())
	assert.ErrorIs(t, err, entity.ErrRefGenerationExhausted)
	assert.Empty(t, ref)
	assert.Equal(t, 5, checker.calls)
}

type failingChecker struct{ err error }

func (c failingChecker) RefExists(ctx context.Context, ref string) (bool, error) {
	return false, c.err
}

func TestGenerateUniqueStoreErrors(t *testing.T) {
	t.Run("business error passes through", func(t *testing.T) {
		boom := errors.New("boom")
		g := NewRefGenerator(failingChecker{err: boom}, 5, testPolicy)

		_, err := g.GenerateUnique(context.Background())
		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, entity.ErrStoreUnavailable)
	})

	t.Run("transient error exhausts retry budget", func(t *testing.T) {
		g := NewRefGenerator(failingChecker{err: context.DeadlineExceeded}, 5, retry.NewPolicy(2, 0, 0))

		_, err := g.GenerateUnique(context.Background())
		assert.ErrorIs(t, err, entity.ErrStoreUnavailable)
	})
}
