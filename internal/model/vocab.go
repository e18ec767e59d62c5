package model

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// ReadVocab parses a vocabulary in the one-piece-per-line convention; token
// ids are line numbers starting at zero. A trailing newline does not produce
// an empty final piece. Interior empty lines are rejected because every id
// must name a piece.
func ReadVocab(r io.Reader) ([]string, error) {
	var vocab []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		vocab = append(vocab, strings.TrimRight(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}
	for len(vocab) > 0 && vocab[len(vocab)-1] == "" {
		vocab = vocab[:len(vocab)-1]
	}
	for i, piece := range vocab {
		if piece == "" {
			return nil, fmt.Errorf("read vocabulary: empty piece at id %d", i)
		}
	}
	return vocab, nil
}

// LoadVocabFile reads a vocabulary file from disk.
func LoadVocabFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vocabulary %q: %w", path, err)
	}
	defer f.Close()

	vocab, err := ReadVocab(f)
	if err != nil {
		return nil, fmt.Errorf("vocabulary %q: %w", path, err)
	}
	return vocab, nil
}
