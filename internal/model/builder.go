package model

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/example/go-fast-wordpiece/internal/text"
	"github.com/example/go-fast-wordpiece/internal/trie"
)

// BuildOptions selects how a vocabulary is compiled into a Config.
type BuildOptions struct {
	// SuffixIndicator marks continuation pieces, conventionally "##".
	SuffixIndicator string
	// UnkToken must name a piece present in the vocabulary.
	UnkToken string
	// MaxBytesPerToken caps the byte length of a single input word.
	MaxBytesPerToken int
	// EndToEnd compiles the whitespace/punctuation splitting support into
	// the trie (dummy punctuation states and the failure sentinel).
	EndToEnd bool
	// SupportDetokenization retains the vocabulary in the model so id
	// streams can be turned back into text.
	SupportDetokenization bool
}

// DefaultBuildOptions returns the conventional BERT-style settings.
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{
		SuffixIndicator:       "##",
		UnkToken:              "[UNK]",
		MaxBytesPerToken:      100,
		EndToEnd:              true,
		SupportDetokenization: true,
	}
}

// Build compiles an id-ordered vocabulary into an immutable Config.
func Build(vocab []string, opts BuildOptions) (*Config, error) {
	if len(vocab) == 0 {
		return nil, fmt.Errorf("%w: empty vocabulary", ErrInvalidConfig)
	}
	if opts.SuffixIndicator == "" {
		return nil, fmt.Errorf("%w: empty suffix indicator", ErrInvalidConfig)
	}
	if opts.MaxBytesPerToken <= 0 {
		return nil, fmt.Errorf("%w: max bytes per token must be positive", ErrInvalidConfig)
	}

	unkID := -1
	index := make(map[string]int, len(vocab))
	for id, piece := range vocab {
		if piece == "" {
			return nil, fmt.Errorf("%w: empty piece at id %d", ErrInvalidConfig, id)
		}
		if _, dup := index[piece]; dup {
			return nil, fmt.Errorf("%w: duplicate piece %q", ErrInvalidConfig, piece)
		}
		index[piece] = id
		if piece == opts.UnkToken {
			unkID = id
		}
	}
	if unkID < 0 {
		return nil, fmt.Errorf("%w: unknown token %q not in vocabulary", ErrInvalidConfig, opts.UnkToken)
	}

	entries, isSuffixByID, err := trieEntries(vocab, unkID, opts)
	if err != nil {
		return nil, err
	}

	tr, err := trie.Build(entries)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	suffixRoot, ok := walk(tr, opts.SuffixIndicator)
	if !ok {
		return nil, fmt.Errorf("%w: suffix indicator path missing from trie", ErrInvalidConfig)
	}

	cfg := &Config{
		SuffixIndicator:       opts.SuffixIndicator,
		UnkToken:              opts.UnkToken,
		UnkTokenID:            unkID,
		MaxBytesPerToken:      opts.MaxBytesPerToken,
		EndToEnd:              opts.EndToEnd,
		SupportDetokenization: opts.SupportDetokenization,
		TrieSuffixRoot:        suffixRoot,
		Trie:                  tr,
	}
	if opts.EndToEnd {
		// The sentinel is the state id one past the double array. No edge
		// reaches it and no edge leaves it; its failure entry stays null.
		cfg.TriePunctFailureLink = uint32(tr.Size())
	}

	if err := computeFailureStructure(cfg); err != nil {
		return nil, err
	}

	cfg.SuffixIndicatorResult, err = tokenizeSuffixIndicator(index, unkID, opts)
	if err != nil {
		return nil, err
	}

	if opts.SupportDetokenization {
		// The vocabulary is stored with suffix indicators stripped; the
		// is-suffix array carries the distinction.
		cfg.Vocab = make([]string, len(vocab))
		for id, piece := range vocab {
			if isSuffixByID[id] {
				piece = piece[len(opts.SuffixIndicator):]
			}
			cfg.Vocab[id] = piece
		}
		cfg.VocabIsSuffix = isSuffixByID
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// trieEntries prepares the key set: every vocabulary piece as written (the
// piece equal to the suffix indicator is excluded and served by the
// precomputed result), a valueless marker guaranteeing the suffix-indicator
// path, and in end-to-end mode one dummy state per punctuation/CJK scalar
// missing from the vocabulary.
func trieEntries(vocab []string, unkID int, opts BuildOptions) ([]trie.Entry, []bool, error) {
	entries := make([]trie.Entry, 0, len(vocab)+1)
	isSuffixByID := make([]bool, len(vocab))
	seen := make(map[string]bool, len(vocab))

	for id, piece := range vocab {
		isSuffix := strings.HasPrefix(piece, opts.SuffixIndicator) && len(piece) > len(opts.SuffixIndicator)
		isSuffixByID[id] = isSuffix
		if piece == opts.SuffixIndicator {
			continue
		}
		matchLen := len(piece)
		if isSuffix {
			matchLen -= len(opts.SuffixIndicator)
		}
		encoded, err := EncodeToken(id, matchLen, isSuffix)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: piece %q: %v", ErrInvalidConfig, piece, err)
		}
		entries = append(entries, trie.Entry{Key: piece, Value: uint32(encoded), HasValue: true})
		seen[piece] = true
	}

	if !seen[opts.SuffixIndicator] {
		entries = append(entries, trie.Entry{Key: opts.SuffixIndicator})
	}

	if opts.EndToEnd {
		for r := rune(0); r <= utf8.MaxRune; r++ {
			if !utf8.ValidRune(r) || !text.IsPunctOrCJK(r) {
				continue
			}
			key := string(r)
			if seen[key] {
				continue
			}
			encoded, err := EncodeToken(unkID, len(key), false)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: punctuation dummy %q: %v", ErrInvalidConfig, key, err)
			}
			entries = append(entries, trie.Entry{Key: key, Value: uint32(encoded), HasValue: true})
		}
	}

	return entries, isSuffixByID, nil
}

func walk(tr *trie.Trie, key string) (uint32, bool) {
	cur := tr.RootCursor()
	if !tr.TryStepBytes(&cur, key) {
		return 0, false
	}
	return cur.NodeID, true
}

// trieState carries the traversal facts the failure computation needs about
// one double-array state.
type trieState struct {
	id     uint32
	parent uint32
	label  byte
	str    string
	// depth is the failure-computation order key: the byte depth of the
	// state, not counting a leading suffix indicator. Failure chains only
	// ever reference states of strictly smaller depth.
	depth int
}

// computeFailureStructure fills FailureLinks, FailurePops, and the pops pool.
//
// Terminal states pop their own token and fail to the suffix root (to the
// punctuation sentinel for single-scalar punctuation terminals in end-to-end
// mode). Any other state v with parent u over byte c inherits u's pops and
// walks u's failure chain until a state can consume c; if the chain bottoms
// out the state has no failure link and a stall there maps the word to the
// unknown token. States on the suffix-indicator path never fail.
func computeFailureStructure(cfg *Config) error {
	tr := cfg.Trie
	n := tr.Size()

	cfg.FailureLinks = make([]uint32, n+1)
	cfg.FailurePops = make([]uint32, n+1)

	states := collectStates(cfg)

	// pops holds F(v) for the builder's own recurrence. Stored pops ranges
	// stay empty for terminal states: the runtime shortcut reads their token
	// straight from the trie payload.
	pops := make([][]EncodedToken, n+1)

	for _, st := range states {
		cur := trie.Cursor{NodeID: st.id}

		if data, ok := tr.TryData(cur); ok {
			token := EncodedToken(data)
			pops[st.id] = []EncodedToken{token}
			cfg.FailureLinks[st.id] = cfg.TrieSuffixRoot
			if cfg.EndToEnd && isSinglePunctScalar(st.str) {
				cfg.FailureLinks[st.id] = cfg.TriePunctFailureLink
			}
			continue
		}

		if strings.HasPrefix(cfg.SuffixIndicator, st.str) {
			// On the suffix-indicator path, including the suffix root.
			continue
		}

		link, f := failureViaParent(cfg, tr, st, pops)
		if link == NullNode {
			continue
		}
		cfg.FailureLinks[st.id] = link
		pops[st.id] = f

		offset := len(cfg.FailurePopsPool)
		cfg.FailurePopsPool = append(cfg.FailurePopsPool, f...)
		packed, err := packPopsRange(offset, len(f))
		if err != nil {
			return err
		}
		cfg.FailurePops[st.id] = packed
	}
	return nil
}

// failureViaParent resolves f(v) and F(v) for a non-terminal state off the
// suffix-indicator path. Root children and children of no-failure states
// resolve to the null link naturally: their parent's link is null and the
// chain walk never starts.
func failureViaParent(cfg *Config, tr *trie.Trie, st trieState, pops [][]EncodedToken) (uint32, []EncodedToken) {
	z := cfg.FailureLinks[st.parent]
	f := append([]EncodedToken(nil), pops[st.parent]...)

	for z != NullNode {
		cur := trie.Cursor{NodeID: z}
		if tr.TryStep(&cur, st.label) {
			return cur.NodeID, f
		}
		f = append(f, pops[z]...)
		z = cfg.FailureLinks[z]
	}
	return NullNode, nil
}

func isSinglePunctScalar(s string) bool {
	r, size := utf8.DecodeRuneInString(s)
	return size == len(s) && text.IsPunctOrCJK(r)
}

// collectStates walks the trie breadth-first and returns every reachable
// state sorted by the failure-computation depth.
func collectStates(cfg *Config) []trieState {
	tr := cfg.Trie
	indicator := cfg.SuffixIndicator

	var states []trieState
	queue := []trieState{{id: trie.RootNodeID}}
	for len(queue) > 0 {
		st := queue[0]
		queue = queue[1:]
		if st.id != trie.RootNodeID {
			states = append(states, st)
		}
		cur := trie.Cursor{NodeID: st.id}
		for b := 0; b < 256; b++ {
			next := cur
			if !tr.TryStep(&next, byte(b)) {
				continue
			}
			child := trieState{
				id:     next.NodeID,
				parent: st.id,
				label:  byte(b),
				str:    st.str + string([]byte{byte(b)}),
			}
			child.depth = len(child.str)
			if strings.HasPrefix(child.str, indicator) {
				child.depth -= len(indicator)
			}
			queue = append(queue, child)
		}
	}

	// Bucket by depth; chains reference strictly smaller depths, so any
	// order inside a bucket works.
	maxDepth := 0
	for _, st := range states {
		if st.depth > maxDepth {
			maxDepth = st.depth
		}
	}
	buckets := make([][]trieState, maxDepth+1)
	for _, st := range states {
		buckets[st.depth] = append(buckets[st.depth], st)
	}
	ordered := states[:0]
	for _, bucket := range buckets {
		ordered = append(ordered, bucket...)
	}
	return ordered
}

// tokenizeSuffixIndicator precomputes the emission for an input word equal
// to the suffix indicator, using the classical greedy longest-match rule. A
// word that cannot be segmented precomputes to the single unknown token.
func tokenizeSuffixIndicator(index map[string]int, unkID int, opts BuildOptions) ([]EncodedToken, error) {
	word := opts.SuffixIndicator

	unknown := func() ([]EncodedToken, error) {
		length := len(word)
		if length > MaxTokenLength {
			length = MaxTokenLength
		}
		e, err := EncodeToken(unkID, length, false)
		if err != nil {
			return nil, err
		}
		return []EncodedToken{e}, nil
	}

	if len(word) > opts.MaxBytesPerToken {
		return unknown()
	}

	var result []EncodedToken
	start := 0
	for start < len(word) {
		matched := -1
		end := len(word)
		for ; end > start; end-- {
			candidate := word[start:end]
			if start > 0 {
				candidate = opts.SuffixIndicator + candidate
			}
			if id, ok := index[candidate]; ok {
				matched = id
				break
			}
		}
		if matched < 0 {
			return unknown()
		}
		e, err := EncodeToken(matched, end-start, start > 0)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
		start = end
	}
	return result, nil
}
