package model

import (
	"errors"
	"fmt"

	"github.com/example/go-fast-wordpiece/internal/trie"
)

// NullNode marks the absence of a failure link. Cell 0 of the double array
// is reserved, so no reachable state ever has this id.
const NullNode uint32 = 0

// ErrInvalidConfig is wrapped by every construction-time validation failure.
var ErrInvalidConfig = errors.New("model: invalid config")

// Config is the immutable tokenizer model. It is created once, either by
// the builder or by decoding a serialized blob, and is shared read-only by
// any number of concurrent tokenizations.
type Config struct {
	// Vocab and VocabIsSuffix are indexed by token id. They are only
	// populated when SupportDetokenization is set; tokenization synthesizes
	// pieces from the input bytes and never consults them.
	Vocab         []string
	VocabIsSuffix []bool

	SuffixIndicator string
	UnkToken        string
	UnkTokenID      int

	MaxBytesPerToken      int
	EndToEnd              bool
	SupportDetokenization bool

	// TrieSuffixRoot is the state reached by consuming exactly the suffix
	// indicator from the root. TriePunctFailureLink is the sentinel state
	// punctuation terminals fail to in end-to-end mode; NullNode otherwise.
	TrieSuffixRoot       uint32
	TriePunctFailureLink uint32

	// FailureLinks and FailurePops are indexed by state id and sized one
	// past the trie so the punctuation sentinel has a (null) entry.
	// FailurePops packs (pool offset << 8 | count).
	FailureLinks []uint32
	FailurePops  []uint32

	FailurePopsPool []EncodedToken

	// SuffixIndicatorResult is the precomputed tokenization of the suffix
	// indicator string itself.
	SuffixIndicatorResult []EncodedToken

	Trie *trie.Trie
}

const (
	popsCountBits = 8
	popsCountMask = 1<<popsCountBits - 1

	// maxPopsPoolOffset bounds the pool offset representable next to the
	// count in one uint32.
	maxPopsPoolOffset = 1<<(32-popsCountBits) - 1
)

func packPopsRange(offset, count int) (uint32, error) {
	if count > popsCountMask {
		return 0, fmt.Errorf("model: failure pops list of %d tokens exceeds limit %d", count, popsCountMask)
	}
	if offset > maxPopsPoolOffset {
		return 0, fmt.Errorf("model: failure pops pool offset %d exceeds limit %d", offset, maxPopsPoolOffset)
	}
	return uint32(offset)<<popsCountBits | uint32(count), nil
}

// FailurePopsRange returns the pool slice bounds for a state.
func (c *Config) FailurePopsRange(node uint32) (offset, count int) {
	packed := c.FailurePops[node]
	return int(packed >> popsCountBits), int(packed & popsCountMask)
}

// Validate checks the structural invariants a decoded or built config must
// satisfy before the runtime may use it.
func (c *Config) Validate() error {
	if c.Trie == nil {
		return fmt.Errorf("%w: missing trie", ErrInvalidConfig)
	}
	n := c.Trie.Size()
	if len(c.FailureLinks) != n+1 || len(c.FailurePops) != n+1 {
		return fmt.Errorf("%w: failure arrays sized %d/%d, want %d", ErrInvalidConfig, len(c.FailureLinks), len(c.FailurePops), n+1)
	}
	if c.SuffixIndicator == "" {
		return fmt.Errorf("%w: empty suffix indicator", ErrInvalidConfig)
	}
	if c.UnkToken == "" {
		return fmt.Errorf("%w: empty unknown token", ErrInvalidConfig)
	}
	if c.MaxBytesPerToken <= 0 {
		return fmt.Errorf("%w: max bytes per token must be positive", ErrInvalidConfig)
	}
	if int(c.TrieSuffixRoot) >= n || c.TrieSuffixRoot == NullNode {
		return fmt.Errorf("%w: suffix root %d outside trie of %d states", ErrInvalidConfig, c.TrieSuffixRoot, n)
	}
	if int(c.TriePunctFailureLink) > n {
		return fmt.Errorf("%w: punctuation sentinel %d outside trie of %d states", ErrInvalidConfig, c.TriePunctFailureLink, n)
	}
	for i, link := range c.FailureLinks {
		if int(link) > n {
			return fmt.Errorf("%w: failure link %d at state %d outside trie", ErrInvalidConfig, link, i)
		}
		off, count := c.FailurePopsRange(uint32(i))
		if off+count > len(c.FailurePopsPool) {
			return fmt.Errorf("%w: failure pops range [%d,%d) at state %d outside pool of %d", ErrInvalidConfig, off, off+count, i, len(c.FailurePopsPool))
		}
	}
	if c.SupportDetokenization {
		if len(c.Vocab) == 0 || len(c.Vocab) != len(c.VocabIsSuffix) {
			return fmt.Errorf("%w: detokenization enabled but vocabulary arrays are %d/%d", ErrInvalidConfig, len(c.Vocab), len(c.VocabIsSuffix))
		}
		if c.UnkTokenID < 0 || c.UnkTokenID >= len(c.Vocab) {
			return fmt.Errorf("%w: unknown token id %d outside vocabulary of %d", ErrInvalidConfig, c.UnkTokenID, len(c.Vocab))
		}
	}
	return nil
}
