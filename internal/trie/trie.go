// Package trie implements a double-array trie over byte strings.
//
// States are indices into the Base/Check arrays. Cell 0 is reserved and cell
// 1 is the root. An outgoing edge labeled with byte b from state s lands on
// t := Base[s] + uint32(b) + 1 and is valid iff Check[t] == s. Offset 0 is
// reserved for the value cell of a terminal state: t := Base[s] holds the
// state's uint32 payload in Base[t] when Check[t] == s.
//
// The layout follows the classic construction (Aoe's double array as used by
// darts-clone); traversal is a handful of bounds-checked array reads, so a
// cursor can be advanced per input byte with no allocation.
package trie

import "errors"

// RootNodeID is the state every traversal starts from.
const RootNodeID uint32 = 1

// ErrMalformed is returned when the backing arrays cannot form a valid trie.
var ErrMalformed = errors.New("trie: malformed double array")

// Trie is a frozen double-array trie. It is immutable after construction and
// safe for concurrent traversal.
type Trie struct {
	base  []uint32
	check []uint32
}

// Cursor identifies the current traversal state. It is a small value type;
// callers thread it through the Try* calls.
type Cursor struct {
	NodeID uint32
}

// New wraps prebuilt base/check arrays. The arrays are retained, not copied.
func New(base, check []uint32) (*Trie, error) {
	if len(base) != len(check) || len(base) < 2 {
		return nil, ErrMalformed
	}
	return &Trie{base: base, check: check}, nil
}

// Size returns the number of allocated cells.
func (t *Trie) Size() int { return len(t.base) }

// Arrays exposes the backing arrays for serialization.
func (t *Trie) Arrays() (base, check []uint32) { return t.base, t.check }

// RootCursor returns a cursor positioned at the root.
func (t *Trie) RootCursor() Cursor { return Cursor{NodeID: RootNodeID} }

// Reset places cur back at the root.
func (t *Trie) Reset(cur *Cursor) { cur.NodeID = RootNodeID }

// SetCursor repositions cur to an arbitrary state id.
func (t *Trie) SetCursor(cur *Cursor, node uint32) { cur.NodeID = node }

// TryStep advances cur along the edge labeled b. It returns false and leaves
// cur unchanged when no such edge exists.
func (t *Trie) TryStep(cur *Cursor, b byte) bool {
	s := cur.NodeID
	if int(s) >= len(t.base) {
		return false
	}
	next := t.base[s] + uint32(b) + 1
	if int(next) >= len(t.check) || t.check[next] != s {
		return false
	}
	cur.NodeID = next
	return true
}

// TryStepBytes advances cur across all bytes of s, all-or-nothing: on
// failure cur is unchanged.
func (t *Trie) TryStepBytes(cur *Cursor, s string) bool {
	probe := *cur
	for i := 0; i < len(s); i++ {
		if !t.TryStep(&probe, s[i]) {
			return false
		}
	}
	*cur = probe
	return true
}

// TryData returns the payload stored at the current state, if the state is
// terminal.
func (t *Trie) TryData(cur Cursor) (uint32, bool) {
	s := cur.NodeID
	if int(s) >= len(t.base) {
		return 0, false
	}
	vc := t.base[s]
	if int(vc) >= len(t.check) || t.check[vc] != s {
		return 0, false
	}
	return t.base[vc], true
}
