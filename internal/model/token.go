// Package model defines the immutable tokenizer model: the encoded-token
// codec, the config accessor shared by the runtime and the builder, the
// binary blob codec, and the offline builder that precomputes the failure
// structure over the vocabulary trie.
package model

import "fmt"

// EncodedToken packs a vocabulary token reference into one uint32:
//
//	bit  0      is_suffix flag
//	bits 1..8   token byte length (1..255, excluding the suffix indicator)
//	bits 9..31  token id
//
// The layout is shared between the builder (which writes trie payloads and
// failure pops) and the runtime (which decodes them during emission).
type EncodedToken uint32

const (
	suffixFlagBit = 1 << 0
	lengthShift   = 1
	lengthMask    = 0xFF
	idShift       = 9

	// MaxTokenID is the largest encodable token id.
	MaxTokenID = 1<<23 - 1
	// MaxTokenLength is the largest encodable match length in bytes.
	MaxTokenLength = 255
)

// EncodeToken packs id, byte length, and the suffix flag. Length counts the
// bytes matched on the input, without the suffix indicator.
func EncodeToken(id, length int, isSuffix bool) (EncodedToken, error) {
	if id < 0 || id > MaxTokenID {
		return 0, fmt.Errorf("model: token id %d out of range [0, %d]", id, MaxTokenID)
	}
	if length < 1 || length > MaxTokenLength {
		return 0, fmt.Errorf("model: token length %d out of range [1, %d]", length, MaxTokenLength)
	}
	e := EncodedToken(id)<<idShift | EncodedToken(length)<<lengthShift
	if isSuffix {
		e |= suffixFlagBit
	}
	return e, nil
}

// TokenID returns the vocabulary id.
func (e EncodedToken) TokenID() int { return int(e >> idShift) }

// TokenLength returns the matched byte length, excluding the suffix
// indicator.
func (e EncodedToken) TokenLength() int { return int(e>>lengthShift) & lengthMask }

// IsSuffix reports whether the token is a continuation piece.
func (e EncodedToken) IsSuffix() bool { return e&suffixFlagBit != 0 }
