// Package wordpiece implements single-pass WordPiece tokenization over a
// precompiled model.
//
// Classical WordPiece segments a word left to right, longest match first.
// The naive implementation rescans after every match and is quadratic in the
// word length. This package never moves the input cursor backwards: the
// model's trie carries, per state, the tokens that would have been matched
// ("failure pops") and the state representing the remaining suffix ("failure
// link"). When the trie cannot consume the next byte, the tokenizer emits
// the pops and resumes at the linked state, so the total number of trie
// operations stays linear in the input length.
//
// A Tokenizer is immutable and safe for concurrent use; all per-call state
// lives on the caller's stack and in the caller-owned output slices.
package wordpiece

import (
	"unicode/utf8"

	"github.com/example/go-fast-wordpiece/internal/model"
	"github.com/example/go-fast-wordpiece/internal/text"
	"github.com/example/go-fast-wordpiece/internal/trie"
)

// Tokenizer segments UTF-8 text into vocabulary pieces.
type Tokenizer struct {
	cfg  *model.Config
	trie *trie.Trie
}

// New wraps an immutable model config. The config is borrowed, not copied;
// it must stay alive as long as the tokenizer.
func New(cfg *model.Config) (*Tokenizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Tokenizer{cfg: cfg, trie: cfg.Trie}, nil
}

// NewFromBlob decodes a serialized model blob and wraps it.
func NewFromBlob(blob []byte) (*Tokenizer, error) {
	cfg, err := model.DecodeModel(blob)
	if err != nil {
		return nil, err
	}
	return New(cfg)
}

// Config exposes the underlying model.
func (t *Tokenizer) Config() *model.Config { return t.cfg }

// outputs bundles the caller-owned result slices. A nil slot is not
// requested. Every append keeps the requested slots in lockstep.
type outputs struct {
	pieces *[]string
	ids    *[]int
	starts *[]int
	ends   *[]int
}

func (o *outputs) size() int {
	if o.pieces != nil {
		return len(*o.pieces)
	}
	return len(*o.ids)
}

func (o *outputs) truncate(n int) {
	if o.pieces != nil {
		*o.pieces = (*o.pieces)[:n]
	}
	if o.ids != nil {
		*o.ids = (*o.ids)[:n]
	}
	if o.starts != nil {
		*o.starts = (*o.starts)[:n]
	}
	if o.ends != nil {
		*o.ends = (*o.ends)[:n]
	}
}

// Tokenize appends pieces, ids, and byte offsets for input to the supplied
// slices. At least one of pieces and ids must be non-nil; starts and ends
// are optional but go together. In single-word mode, input must be one
// pre-split word and wordOffset is the byte offset of input[0] in the
// enclosing text; it is added to every emitted offset. In end-to-end mode
// the tokenizer splits words itself, offsets are relative to input, and
// wordOffset is ignored.
func (t *Tokenizer) Tokenize(input string, pieces *[]string, ids *[]int, starts, ends *[]int, wordOffset int) {
	t.run(input, outputs{pieces: pieces, ids: ids, starts: starts, ends: ends}, wordOffset)
}

// TokenizeIDsOffsets appends ids and byte offsets only.
func (t *Tokenizer) TokenizeIDsOffsets(input string, ids *[]int, starts, ends *[]int, wordOffset int) {
	t.run(input, outputs{ids: ids, starts: starts, ends: ends}, wordOffset)
}

// TokenizeIDs appends ids only.
func (t *Tokenizer) TokenizeIDs(input string, ids *[]int, wordOffset int) {
	t.run(input, outputs{ids: ids}, wordOffset)
}

func (t *Tokenizer) run(input string, out outputs, wordOffset int) {
	if t.cfg.EndToEnd {
		t.tokenizeText(input, out)
		return
	}
	t.tokenizeSingleWord(input, wordOffset, out)
}

// tokenizeSingleWord segments one already-isolated word.
func (t *Tokenizer) tokenizeSingleWord(word string, wordOffset int, out outputs) {
	if word == "" {
		return
	}

	// originalNumTokens snapshots the output size so a word that turns out
	// to be unsegmentable can drop its tentative tokens and emit one
	// unknown token instead.
	originalNumTokens := out.size()

	if len(word) > t.cfg.MaxBytesPerToken {
		t.resetAppendUnknown(wordOffset, len(word), &originalNumTokens, out)
		return
	}

	curOffsetInWord := 0
	cur := t.trie.RootCursor()

	// Matching runs on raw bytes; it is equivalent to matching decoded
	// scalars because vocabulary keys are well-formed UTF-8.
	for i := 0; i < len(word); i++ {
		for !t.trie.TryStep(&cur, word[i]) {
			if !t.tryFollowFailure(word, wordOffset, &curOffsetInWord, &cur, out) {
				// No failure link: nothing along the current path can be
				// popped, so the word cannot be segmented.
				t.resetAppendUnknown(wordOffset, len(word), &originalNumTokens, out)
				return
			}
		}
	}

	t.handleRemaining(word, wordOffset, &cur, &originalNumTokens, &curOffsetInWord, out)
}

// tokenizeText scans arbitrary text, splitting words and segmenting them in
// one forward sweep over the same trie cursor.
func (t *Tokenizer) tokenizeText(input string, out outputs) {
	if input == "" {
		return
	}
	size := len(input)
	curPos := 0
	nextPos := 0
	originalNumTokens := out.size()
	var prevRune, curRune rune

	for curPos < size {
		curOffsetInWord := 0
		cur := t.trie.RootCursor()
		wordBytesSoFar := 0
		wordStart := curPos
		word := input[wordStart:]
		oversizedScalar := false

		// Match scalars until the input ends, the word hits the length
		// cap, or the trie stalls on a boundary or unknown scalar.
	match:
		for curPos < size {
			prevRune = curRune
			var n int
			curRune, n = utf8.DecodeRuneInString(input[curPos:])
			nextPos = curPos + n

			if wordBytesSoFar+n > t.cfg.MaxBytesPerToken {
				// A single scalar wider than the cap can never be matched,
				// not even as a boundary token; it must take the unknown
				// path below or the scan would stop advancing.
				oversizedScalar = wordBytesSoFar == 0
				break
			}
			for !t.trie.TryStepBytes(&cur, input[curPos:nextPos]) {
				if !t.tryFollowFailure(word, wordStart, &curOffsetInWord, &cur, out) {
					break match
				}
			}
			wordBytesSoFar += n
			curPos = nextPos
		}

		if curPos >= size {
			t.handleRemaining(word, wordStart, &cur, &originalNumTokens, &curOffsetInWord, out)
			break
		}

		isWhitespace := text.IsWhitespace(curRune)
		if isWhitespace || (!oversizedScalar && (text.IsPunctOrCJK(curRune) ||
			(curPos != 0 && text.IsPunctOrCJK(prevRune)))) {
			// A word boundary: flush the word matched so far, then let the
			// boundary scalar start the next word. Whitespace is consumed;
			// punctuation is not, it may be a token by itself.
			t.handleRemaining(input[wordStart:curPos], wordStart, &cur, &originalNumTokens, &curOffsetInWord, out)
			if isWhitespace {
				curPos = nextPos
			}
			continue
		}

		// The scalar is not a boundary: the word contains a character
		// outside the trie or ran over the length cap. The whole word maps
		// to the unknown token. The current scalar has already been tested,
		// skip it before scanning for the end of the word.
		curPos = nextPos
		endOfWord := skipWord(input, &curPos)
		t.resetAppendUnknown(wordStart, endOfWord-wordStart, &originalNumTokens, out)
	}
}

// skipWord advances curPos past the remaining non-boundary scalars of the
// current word and one trailing whitespace scalar, if present. It returns
// the exclusive end of the word, which the skipped whitespace is not part
// of.
func skipWord(input string, curPos *int) int {
	endOfWord := *curPos
	for *curPos < len(input) {
		r, n := utf8.DecodeRuneInString(input[*curPos:])
		nextPos := *curPos + n
		if text.IsWhitespace(r) {
			*curPos = nextPos
			break
		}
		if text.IsPunctOrCJK(r) {
			break
		}
		endOfWord = nextPos
		*curPos = nextPos
	}
	return endOfWord
}

// tryFollowFailure performs one failure transition: emit the tokens covering
// the popped prefix of the current trie path and resume at the state for the
// remaining suffix. It returns false when the state has no failure link.
func (t *Tokenizer) tryFollowFailure(word string, wordOffset int, curOffsetInWord *int, cur *trie.Cursor, out outputs) bool {
	if data, ok := t.trie.TryData(*cur); ok {
		// Terminal states pop exactly their own token; reading it from the
		// trie payload skips the pops pool lookup.
		t.appendToken(word, wordOffset, curOffsetInWord, model.EncodedToken(data), out)
		t.trie.SetCursor(cur, t.cfg.FailureLinks[cur.NodeID])
		return true
	}

	link := t.cfg.FailureLinks[cur.NodeID]
	if link == model.NullNode {
		return false
	}
	off, count := t.cfg.FailurePopsRange(cur.NodeID)
	for _, e := range t.cfg.FailurePopsPool[off : off+count] {
		t.appendToken(word, wordOffset, curOffsetInWord, e, out)
	}
	t.trie.SetCursor(cur, link)
	return true
}

// appendToken emits one token to every requested output slice. Pieces are
// synthesized from the input bytes rather than looked up in the vocabulary.
func (t *Tokenizer) appendToken(word string, wordOffset int, curOffsetInWord *int, e model.EncodedToken, out outputs) {
	id := e.TokenID()
	if out.ids != nil {
		*out.ids = append(*out.ids, id)
	}
	if out.pieces == nil && out.starts == nil {
		return
	}

	subLen := e.TokenLength()
	if *curOffsetInWord == 0 && e.IsSuffix() {
		// The word itself starts with the suffix indicator (e.g. "##a"), so
		// the first emission must also cover the indicator bytes.
		subLen += len(t.cfg.SuffixIndicator)
	}
	if out.pieces != nil {
		switch {
		case id == t.cfg.UnkTokenID:
			// Dummy states for out-of-vocabulary punctuation carry the
			// unknown id; the piece is the unknown token string.
			*out.pieces = append(*out.pieces, t.cfg.UnkToken)
		case *curOffsetInWord > 0:
			*out.pieces = append(*out.pieces, t.cfg.SuffixIndicator+word[*curOffsetInWord:*curOffsetInWord+subLen])
		default:
			*out.pieces = append(*out.pieces, word[:subLen])
		}
	}
	if out.starts != nil {
		*out.starts = append(*out.starts, wordOffset+*curOffsetInWord)
		*out.ends = append(*out.ends, wordOffset+*curOffsetInWord+subLen)
	}
	*curOffsetInWord += subLen
}

// handleRemaining flushes the tokens still encoded on the trie path after
// the last input byte of a word.
func (t *Tokenizer) handleRemaining(word string, wordOffset int, cur *trie.Cursor, originalNumTokens, curOffsetInWord *int, out outputs) {
	if cur.NodeID == trie.RootNodeID {
		// Empty word, nothing matched and nothing pending.
		return
	}
	if t.trySuffixIndicatorWord(word, wordOffset, *cur, curOffsetInWord, *originalNumTokens, out) {
		*originalNumTokens = out.size()
		return
	}

	// The word is fully segmented exactly when following failure links
	// drains the path down to the suffix root (or to the punctuation
	// sentinel, whose token was already emitted by the terminal shortcut).
	for cur.NodeID != t.cfg.TrieSuffixRoot && cur.NodeID != t.cfg.TriePunctFailureLink {
		if !t.tryFollowFailure(word, wordOffset, curOffsetInWord, cur, out) {
			t.resetAppendUnknown(wordOffset, len(word), originalNumTokens, out)
			return
		}
	}
	*originalNumTokens = out.size()
}

// trySuffixIndicatorWord handles the input word being the suffix indicator
// itself: the cursor sits on the suffix root with nothing emitted, a state
// no other word can end in. The precomputed result covers it.
func (t *Tokenizer) trySuffixIndicatorWord(word string, wordOffset int, cur trie.Cursor, curOffsetInWord *int, originalNumTokens int, out outputs) bool {
	if cur.NodeID != t.cfg.TrieSuffixRoot {
		return false
	}
	if out.size() != originalNumTokens {
		return false
	}

	result := t.cfg.SuffixIndicatorResult
	if len(result) == 1 && result[0].TokenID() == t.cfg.UnkTokenID {
		local := originalNumTokens
		t.resetAppendUnknown(wordOffset, len(word), &local, out)
		return true
	}
	for _, e := range result {
		t.appendToken(word, wordOffset, curOffsetInWord, e, out)
	}
	return true
}

// resetAppendUnknown drops the tokens tentatively emitted for the current
// word and appends a single unknown token spanning the whole word.
func (t *Tokenizer) resetAppendUnknown(wordOffset, wordLen int, originalNumTokens *int, out outputs) {
	out.truncate(*originalNumTokens)
	if out.pieces != nil {
		*out.pieces = append(*out.pieces, t.cfg.UnkToken)
	}
	if out.ids != nil {
		*out.ids = append(*out.ids, t.cfg.UnkTokenID)
	}
	if out.starts != nil {
		*out.starts = append(*out.starts, wordOffset)
		*out.ends = append(*out.ends, wordOffset+wordLen)
	}
	*originalNumTokens++
}

// Result bundles every output vector of one tokenization.
type Result struct {
	Pieces []string
	IDs    []int
	Starts []int
	Ends   []int
}

// TokenizeAll tokenizes input and returns every output vector. It is a
// convenience for callers that do not manage their own slices.
func (t *Tokenizer) TokenizeAll(input string) Result {
	var res Result
	t.Tokenize(input, &res.Pieces, &res.IDs, &res.Starts, &res.Ends, 0)
	return res
}
