package trie

import "testing"

func buildTest(t *testing.T, entries []Entry) *Trie {
	t.Helper()
	tr, err := Build(entries)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return tr
}

func TestBuildAndTraverse(t *testing.T) {
	tr := buildTest(t, []Entry{
		{Key: "a", Value: 10, HasValue: true},
		{Key: "abcd", Value: 11, HasValue: true},
		{Key: "##b", Value: 12, HasValue: true},
		{Key: "##", Value: 0, HasValue: false},
	})

	tests := []struct {
		key       string
		reachable bool
		value     uint32
		hasValue  bool
	}{
		{key: "a", reachable: true, value: 10, hasValue: true},
		{key: "ab", reachable: true},
		{key: "abc", reachable: true},
		{key: "abcd", reachable: true, value: 11, hasValue: true},
		{key: "abcde", reachable: false},
		{key: "#", reachable: true},
		{key: "##", reachable: true},
		{key: "##b", reachable: true, value: 12, hasValue: true},
		{key: "b", reachable: false},
		{key: "ba", reachable: false},
	}

	for _, tt := range tests {
		cur := tr.RootCursor()
		ok := tr.TryStepBytes(&cur, tt.key)
		if ok != tt.reachable {
			t.Errorf("path %q: reachable = %v, want %v", tt.key, ok, tt.reachable)
			continue
		}
		if !tt.reachable {
			if cur.NodeID != RootNodeID {
				t.Errorf("path %q: failed step moved cursor to %d", tt.key, cur.NodeID)
			}
			continue
		}
		data, hasValue := tr.TryData(cur)
		if hasValue != tt.hasValue {
			t.Errorf("path %q: hasValue = %v, want %v", tt.key, hasValue, tt.hasValue)
		}
		if hasValue && data != tt.value {
			t.Errorf("path %q: value = %d, want %d", tt.key, data, tt.value)
		}
	}
}

func TestTryStepLeavesCursorOnFailure(t *testing.T) {
	tr := buildTest(t, []Entry{{Key: "ab", Value: 1, HasValue: true}})

	cur := tr.RootCursor()
	if !tr.TryStep(&cur, 'a') {
		t.Fatal("step 'a' failed")
	}
	at := cur.NodeID
	if tr.TryStep(&cur, 'x') {
		t.Fatal("step 'x' unexpectedly succeeded")
	}
	if cur.NodeID != at {
		t.Errorf("cursor moved to %d on failed step", cur.NodeID)
	}
}

func TestTryStepBytesIsAllOrNothing(t *testing.T) {
	tr := buildTest(t, []Entry{{Key: "abc", Value: 1, HasValue: true}})

	cur := tr.RootCursor()
	if tr.TryStepBytes(&cur, "abx") {
		t.Fatal("partial path unexpectedly consumed")
	}
	if cur.NodeID != RootNodeID {
		t.Errorf("cursor moved to %d on failed multi-step", cur.NodeID)
	}
	if !tr.TryStepBytes(&cur, "ab") {
		t.Fatal("valid prefix rejected")
	}
}

func TestSetCursorAndReset(t *testing.T) {
	tr := buildTest(t, []Entry{{Key: "ab", Value: 1, HasValue: true}})

	cur := tr.RootCursor()
	if !tr.TryStepBytes(&cur, "ab") {
		t.Fatal("walk failed")
	}
	saved := cur.NodeID

	tr.Reset(&cur)
	if cur.NodeID != RootNodeID {
		t.Fatalf("Reset left cursor at %d", cur.NodeID)
	}

	tr.SetCursor(&cur, saved)
	if _, ok := tr.TryData(cur); !ok {
		t.Error("jump to saved state lost the payload")
	}
}

// States past the arrays (the punctuation sentinel convention) must be inert.
func TestOutOfRangeStateIsInert(t *testing.T) {
	tr := buildTest(t, []Entry{{Key: "a", Value: 1, HasValue: true}})

	cur := tr.RootCursor()
	tr.SetCursor(&cur, uint32(tr.Size()))
	if tr.TryStep(&cur, 'a') {
		t.Error("step from out-of-range state succeeded")
	}
	if _, ok := tr.TryData(cur); ok {
		t.Error("out-of-range state has data")
	}
}

func TestBuildRejectsBadEntries(t *testing.T) {
	if _, err := Build([]Entry{{Key: ""}}); err == nil {
		t.Error("empty key accepted")
	}
	if _, err := Build([]Entry{{Key: "a", HasValue: true}, {Key: "a"}}); err == nil {
		t.Error("duplicate key accepted")
	}
}

func TestNewValidatesArrays(t *testing.T) {
	if _, err := New([]uint32{0}, []uint32{0, 0}); err == nil {
		t.Error("mismatched arrays accepted")
	}
	if _, err := New([]uint32{0}, []uint32{0}); err == nil {
		t.Error("undersized arrays accepted")
	}
}

func TestBuildManyKeys(t *testing.T) {
	var entries []Entry
	for b1 := byte('a'); b1 <= 'z'; b1++ {
		for b2 := byte('a'); b2 <= 'z'; b2++ {
			entries = append(entries, Entry{
				Key:      string([]byte{b1, b2}),
				Value:    uint32(b1)<<8 | uint32(b2),
				HasValue: true,
			})
		}
	}
	tr := buildTest(t, entries)

	for _, e := range entries {
		cur := tr.RootCursor()
		if !tr.TryStepBytes(&cur, e.Key) {
			t.Fatalf("key %q unreachable", e.Key)
		}
		data, ok := tr.TryData(cur)
		if !ok || data != e.Value {
			t.Fatalf("key %q: value = (%d, %v), want %d", e.Key, data, ok, e.Value)
		}
	}
}
