package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/ds124wfegd/bookit/internal/entity"
	"github.com/ds124wfegd/bookit/pkg/retry"
)

const (
	refPrefix       = "BK"
	refLength       = 6
	refAlphabet     = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	DefaultRefTries = 5
)

// largest multiple of len(refAlphabet) below 256; higher bytes are rejected to keep the draw uniform
const refByteLimit = 256 - 256%len(refAlphabet)

// RefChecker answers whether a booking reference is already taken.
type RefChecker interface {
	RefExists(ctx context.Context, ref string) (bool, error)
}

type RefGenerator struct {
	checker  RefChecker
	attempts int
	random   io.Reader
	retry    retry.Policy
}

func NewRefGenerator(checker RefChecker, attempts int, policy retry.Policy) *RefGenerator {
	if attempts <= 0 {
		attempts = DefaultRefTries
	}
	return &RefGenerator{checker: checker, attempts: attempts, random: rand.Reader, retry: policy}
}

func (g *RefGenerator) Attempts() int {
	return g.attempts
}

// Candidate draws one reference of the form BK + 6 chars of [0-9A-Z].
func (g *RefGenerator) Candidate() (string, error) {
	out := make([]byte, 0, len(refPrefix)+refLength)
	out = append(out, refPrefix...)

	buf := make([]byte, refLength*2)
	for len(out) < cap(out) {
		if _, err := io.ReadFull(g.random, buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= refByteLimit {
				continue
			}
			out = append(out, refAlphabet[int(b)%len(refAlphabet)])
			if len(out) == cap(out) {
				break
			}
		}
	}
	return string(out), nil
}

// GenerateUnique returns a reference no stored booking uses yet. The unique
// index on booking_ref stays the final arbiter.
func (g *RefGenerator) GenerateUnique(ctx context.Context) (string, error) {
	for attempt := 0; attempt < g.attempts; attempt++ {
		ref, err := g.Candidate()
		if err != nil {
			return "", err
		}

		exists, err := storeCall(ctx, g.retry, "check booking ref", func(ctx context.Context) (bool, error) {
			return g.checker.RefExists(ctx, ref)
		})
		if err != nil {
			return "", err
		}
		if !exists {
			return ref, nil
		}
	}
	return "", entity.ErrRefGenerationExhausted
}
