// Package testutil provides shared fixtures for tokenizer tests.
//
// Tests build tiny vocabularies inline; the helpers here compile them into
// model configs and tokenizers with test-friendly defaults, failing the test
// on any build error.
package testutil

import (
	"testing"

	"github.com/example/go-fast-wordpiece/internal/model"
	"github.com/example/go-fast-wordpiece/internal/wordpiece"
)

// Options returns build options suited to unit tests: single-word mode,
// detokenization enabled, conventional markers.
func Options() model.BuildOptions {
	return model.BuildOptions{
		SuffixIndicator:       "##",
		UnkToken:              "[UNK]",
		MaxBytesPerToken:      100,
		SupportDetokenization: true,
	}
}

// BuildConfig compiles vocab with the given options, failing tb on error.
func BuildConfig(tb testing.TB, vocab []string, opts model.BuildOptions) *model.Config {
	tb.Helper()

	cfg, err := model.Build(vocab, opts)
	if err != nil {
		tb.Fatalf("build model for vocab %v: %v", vocab, err)
	}
	return cfg
}

// NewTokenizer compiles vocab and wraps it in a tokenizer.
func NewTokenizer(tb testing.TB, vocab []string, opts model.BuildOptions) *wordpiece.Tokenizer {
	tb.Helper()

	tok, err := wordpiece.New(BuildConfig(tb, vocab, opts))
	if err != nil {
		tb.Fatalf("new tokenizer: %v", err)
	}
	return tok
}

// Vocab is the scenario vocabulary most tests share: unknown token first,
// then pieces in id order.
func Vocab(pieces ...string) []string {
	return append([]string{"[UNK]"}, pieces...)
}
