package wordpiece

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDetokenizationDisabled is returned when the model was built without
// support_detokenization; the vocabulary needed to reconstruct text is not
// part of such models.
var ErrDetokenizationDisabled = errors.New("wordpiece: model built without detokenization support")

// ErrTokenIDOutOfRange is returned when an id does not name a vocabulary
// piece.
var ErrTokenIDOutOfRange = errors.New("wordpiece: token id out of range")

// DetokenizeToTokens reconstructs whole words from an id stream. The model
// stores pieces with suffix indicators stripped, so a word is rebuilt by
// plain concatenation: a non-continuation piece starts a new word and
// continuation pieces are glued onto the current one.
func (t *Tokenizer) DetokenizeToTokens(ids []int) ([]string, error) {
	if !t.cfg.SupportDetokenization {
		return nil, ErrDetokenizationDisabled
	}

	var tokens []string
	var word strings.Builder
	for _, id := range ids {
		if id < 0 || id >= len(t.cfg.Vocab) {
			return nil, fmt.Errorf("%w: %d (vocabulary size %d)", ErrTokenIDOutOfRange, id, len(t.cfg.Vocab))
		}
		isSuffix := t.cfg.VocabIsSuffix[id]

		if word.Len() > 0 && !isSuffix {
			tokens = append(tokens, word.String())
			word.Reset()
		}
		if word.Len() == 0 && isSuffix {
			// A leading orphan suffix keeps its visible indicator.
			word.WriteString(t.cfg.SuffixIndicator)
		}
		word.WriteString(t.cfg.Vocab[id])
	}
	if word.Len() > 0 {
		tokens = append(tokens, word.String())
	}
	return tokens, nil
}

// Detokenize reconstructs a whitespace-joined string from an id stream.
func (t *Tokenizer) Detokenize(ids []int) (string, error) {
	tokens, err := t.DetokenizeToTokens(ids)
	if err != nil {
		return "", err
	}
	return strings.Join(tokens, " "), nil
}
