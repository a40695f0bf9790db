package util

import (
	crand "crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// SuffixLength is the number of hex characters appended to generated names.
const SuffixLength = 8

// NameGenerator produces names of the form <prefix>-<8 hex chars>.
// Uniqueness across concurrent callers relies on the randomness of the suffix only.
type NameGenerator struct {
	// Source of randomness. Defaults to crypto/rand when nil.
	Random io.Reader

	mu sync.Mutex
}

func NewNameGenerator(random io.Reader) *NameGenerator {
	return &NameGenerator{Random: random}
}

// Suffix returns SuffixLength hex characters drawn from a random UUID.
func (g *NameGenerator) Suffix() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	random := g.Random
	if random == nil {
		random = crand.Reader
	}
	id, err := uuid.NewRandomFromReader(random)
	if err != nil {
		return "", errors.WithStack(err)
	}
	return strings.ReplaceAll(id.String(), "-", "")[:SuffixLength], nil
}

// Name returns prefix-suffix.
func (g *NameGenerator) Name(prefix string) (string, error) {
	suffix, err := g.Suffix()
	if err != nil {
		return "", err
	}
	if prefix == "" {
		return suffix, nil
	}
	return fmt.Sprintf("%s-%s", prefix, suffix), nil
}

// MustName is like Name but panics if the random source fails.
func (g *NameGenerator) MustName(prefix string) string {
	name, err := g.Name(prefix)
	if err != nil {
		panic(err)
	}
	return name
}
