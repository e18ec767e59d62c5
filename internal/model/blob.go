package model

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/example/go-fast-wordpiece/internal/trie"
)

// Blob layout, little-endian throughout:
//
//	magic "FWPM", version uint16, flags uint16
//	unk token id, max bytes per token, suffix root, punct sentinel (uint32 each)
//	suffix indicator, unk token (uint16 length + bytes each)
//	trie size uint32, base[], check[]
//	failure links[], failure pops[] (trie size + 1 each)
//	pops pool: uint32 count + values
//	suffix indicator result: uint32 count + values
//	if detokenization: vocab count uint32, per piece uint16 length + bytes,
//	  then the is-suffix bitset (one bit per piece)
const (
	blobMagic   = "FWPM"
	blobVersion = uint16(1)

	flagEndToEnd       = 1 << 0
	flagDetokenization = 1 << 1
)

var byteOrder = binary.LittleEndian

// EncodeModel serializes cfg into the binary blob format.
func EncodeModel(cfg *Config) ([]byte, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	var scratch [4]byte

	writeU16 := func(v uint16) {
		byteOrder.PutUint16(scratch[:2], v)
		buf.Write(scratch[:2])
	}
	writeU32 := func(v uint32) {
		byteOrder.PutUint32(scratch[:4], v)
		buf.Write(scratch[:4])
	}
	writeString := func(s string) error {
		if len(s) > 0xFFFF {
			return fmt.Errorf("model: string of %d bytes exceeds blob limit", len(s))
		}
		writeU16(uint16(len(s)))
		buf.WriteString(s)
		return nil
	}

	buf.WriteString(blobMagic)
	writeU16(blobVersion)

	var flags uint16
	if cfg.EndToEnd {
		flags |= flagEndToEnd
	}
	if cfg.SupportDetokenization {
		flags |= flagDetokenization
	}
	writeU16(flags)

	writeU32(uint32(cfg.UnkTokenID))
	writeU32(uint32(cfg.MaxBytesPerToken))
	writeU32(cfg.TrieSuffixRoot)
	writeU32(cfg.TriePunctFailureLink)
	if err := writeString(cfg.SuffixIndicator); err != nil {
		return nil, err
	}
	if err := writeString(cfg.UnkToken); err != nil {
		return nil, err
	}

	base, check := cfg.Trie.Arrays()
	writeU32(uint32(len(base)))
	for _, v := range base {
		writeU32(v)
	}
	for _, v := range check {
		writeU32(v)
	}
	for _, v := range cfg.FailureLinks {
		writeU32(v)
	}
	for _, v := range cfg.FailurePops {
		writeU32(v)
	}

	writeU32(uint32(len(cfg.FailurePopsPool)))
	for _, v := range cfg.FailurePopsPool {
		writeU32(uint32(v))
	}
	writeU32(uint32(len(cfg.SuffixIndicatorResult)))
	for _, v := range cfg.SuffixIndicatorResult {
		writeU32(uint32(v))
	}

	if cfg.SupportDetokenization {
		writeU32(uint32(len(cfg.Vocab)))
		for _, piece := range cfg.Vocab {
			if err := writeString(piece); err != nil {
				return nil, err
			}
		}
		bitset := make([]byte, (len(cfg.Vocab)+7)/8)
		for i, isSuffix := range cfg.VocabIsSuffix {
			if isSuffix {
				bitset[i/8] |= 1 << (i % 8)
			}
		}
		buf.Write(bitset)
	}

	return buf.Bytes(), nil
}

// blobReader is a bounds-checked cursor over a blob.
type blobReader struct {
	data []byte
	pos  int
	err  error
}

func (r *blobReader) fail(what string) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: truncated blob reading %s at offset %d", ErrInvalidConfig, what, r.pos)
	}
}

func (r *blobReader) bytes(n int, what string) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > len(r.data) {
		r.fail(what)
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *blobReader) u16(what string) uint16 {
	b := r.bytes(2, what)
	if b == nil {
		return 0
	}
	return byteOrder.Uint16(b)
}

func (r *blobReader) u32(what string) uint32 {
	b := r.bytes(4, what)
	if b == nil {
		return 0
	}
	return byteOrder.Uint32(b)
}

func (r *blobReader) str(what string) string {
	n := int(r.u16(what))
	return string(r.bytes(n, what))
}

func (r *blobReader) u32slice(n int, what string) []uint32 {
	b := r.bytes(4*n, what)
	if b == nil {
		return nil
	}
	out := make([]uint32, n)
	for i := range out {
		out[i] = byteOrder.Uint32(b[4*i:])
	}
	return out
}

// DecodeModel parses a serialized model blob into a Config.
func DecodeModel(blob []byte) (*Config, error) {
	r := &blobReader{data: blob}

	if string(r.bytes(len(blobMagic), "magic")) != blobMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrInvalidConfig)
	}
	if v := r.u16("version"); r.err == nil && v != blobVersion {
		return nil, fmt.Errorf("%w: unsupported blob version %d", ErrInvalidConfig, v)
	}
	flags := r.u16("flags")

	cfg := &Config{
		EndToEnd:              flags&flagEndToEnd != 0,
		SupportDetokenization: flags&flagDetokenization != 0,
	}
	cfg.UnkTokenID = int(r.u32("unk token id"))
	cfg.MaxBytesPerToken = int(r.u32("max bytes per token"))
	cfg.TrieSuffixRoot = r.u32("suffix root")
	cfg.TriePunctFailureLink = r.u32("punct sentinel")
	cfg.SuffixIndicator = r.str("suffix indicator")
	cfg.UnkToken = r.str("unk token")

	trieSize := int(r.u32("trie size"))
	if r.err == nil && (trieSize < 2 || 4*trieSize > len(blob)) {
		return nil, fmt.Errorf("%w: implausible trie size %d", ErrInvalidConfig, trieSize)
	}
	base := r.u32slice(trieSize, "trie base array")
	check := r.u32slice(trieSize, "trie check array")
	cfg.FailureLinks = r.u32slice(trieSize+1, "failure links")
	cfg.FailurePops = r.u32slice(trieSize+1, "failure pops")

	poolLen := int(r.u32("pops pool size"))
	for _, v := range r.u32slice(poolLen, "pops pool") {
		cfg.FailurePopsPool = append(cfg.FailurePopsPool, EncodedToken(v))
	}
	resultLen := int(r.u32("suffix indicator result size"))
	for _, v := range r.u32slice(resultLen, "suffix indicator result") {
		cfg.SuffixIndicatorResult = append(cfg.SuffixIndicatorResult, EncodedToken(v))
	}

	if cfg.SupportDetokenization {
		vocabLen := int(r.u32("vocab size"))
		if r.err == nil && vocabLen > len(blob) {
			return nil, fmt.Errorf("%w: implausible vocab size %d", ErrInvalidConfig, vocabLen)
		}
		cfg.Vocab = make([]string, 0, max(vocabLen, 0))
		for i := 0; i < vocabLen; i++ {
			cfg.Vocab = append(cfg.Vocab, r.str("vocab piece"))
		}
		bitset := r.bytes((vocabLen+7)/8, "vocab suffix bitset")
		cfg.VocabIsSuffix = make([]bool, vocabLen)
		for i := range cfg.VocabIsSuffix {
			cfg.VocabIsSuffix[i] = r.err == nil && bitset[i/8]&(1<<(i%8)) != 0
		}
	}

	if r.err != nil {
		return nil, r.err
	}
	if r.pos != len(blob) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidConfig, len(blob)-r.pos)
	}

	tr, err := trie.New(base, check)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg.Trie = tr

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadModelFile reads and decodes a model blob from disk.
func LoadModelFile(path string) (*Config, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model %q: %w", path, err)
	}
	cfg, err := DecodeModel(blob)
	if err != nil {
		return nil, fmt.Errorf("model %q: %w", path, err)
	}
	return cfg, nil
}
