// Package ot implements the operational-transformation algebra shared by
// the server and the browser editor: operations are sequences of
// Retain/Insert/Delete components measured in UTF-16 code units, the same
// measure the browser-side editor uses for cursor and selection offsets.
//
// The builder here mirrors the coalescing style of the vendored
// shiv248/operational-transformation-go library (merge into the previous
// Insert, keep a trailing Delete after a newly appended Insert) but counts
// UTF-16 code units instead of Unicode runes.
package ot

import (
	"errors"
	"unicode/utf16"
)

// ErrIncompatibleLengths is returned when two operations cannot be composed
// or transformed because their base/target lengths don't line up.
var ErrIncompatibleLengths = errors.New("ot: incompatible lengths")

// Component is one step of an OperationSeq: Retain, Insert, or Delete.
type Component interface {
	isComponent()
}

// Retain advances the cursor N UTF-16 code units without modifying the text.
type Retain struct{ N int }

// Insert inserts S, measured and sliced in UTF-16 code units, at the cursor.
type Insert struct{ S string }

// Delete removes N UTF-16 code units starting at the cursor.
type Delete struct{ N int }

func (Retain) isComponent() {}
func (Insert) isComponent() {}
func (Delete) isComponent() {}

// utf16Len returns the length of s measured in UTF-16 code units.
func utf16Len(s string) int {
	return len(utf16.Encode([]rune(s)))
}

// UTF16Len is the exported form of utf16Len, for callers outside this
// package that need to compare a string's length against an operation's
// BaseLen/TargetLen (notably internal/session, which never treats text as
// grapheme clusters either).
func UTF16Len(s string) int { return utf16Len(s) }

// toUTF16 encodes s as a slice of UTF-16 code units.
func toUTF16(s string) []uint16 {
	return utf16.Encode([]rune(s))
}

// fromUTF16 decodes a slice of UTF-16 code units back to a string.
func fromUTF16(u []uint16) string {
	return string(utf16.Decode(u))
}

// componentLen returns a component's length in UTF-16 code units.
func componentLen(c Component) int {
	switch v := c.(type) {
	case Retain:
		return v.N
	case Delete:
		return v.N
	case Insert:
		return utf16Len(v.S)
	}
	return 0
}

// OperationSeq is a canonical sequence of Retain/Insert/Delete components.
// baseLen is the length of the string it expects as input; targetLen is the
// length of the string it produces.
type OperationSeq struct {
	ops       []Component
	baseLen   int
	targetLen int
}

// New creates an empty OperationSeq.
func New() *OperationSeq {
	return &OperationSeq{}
}

// WithCapacity creates an empty OperationSeq with pre-allocated component
// capacity, to avoid reallocation while building long operations.
func WithCapacity(capacity int) *OperationSeq {
	return &OperationSeq{ops: make([]Component, 0, capacity)}
}

// BaseLen returns the required length of a string this operation applies to.
func (o *OperationSeq) BaseLen() int { return o.baseLen }

// TargetLen returns the length of the string produced by this operation.
func (o *OperationSeq) TargetLen() int { return o.targetLen }

// Ops returns the underlying canonical component slice. Callers must treat
// it as read-only.
func (o *OperationSeq) Ops() []Component { return o.ops }

// IsNoop reports whether this operation has no effect on its input.
func (o *OperationSeq) IsNoop() bool {
	switch len(o.ops) {
	case 0:
		return true
	case 1:
		_, ok := o.ops[0].(Retain)
		return ok
	default:
		return false
	}
}

// Retain appends a Retain(n) component, merging with a trailing Retain.
func (o *OperationSeq) Retain(n int) {
	if n <= 0 {
		return
	}
	o.baseLen += n
	o.targetLen += n

	if last := len(o.ops) - 1; last >= 0 {
		if r, ok := o.ops[last].(Retain); ok {
			o.ops[last] = Retain{N: r.N + n}
			return
		}
	}
	o.ops = append(o.ops, Retain{N: n})
}

// Delete appends a Delete(n) component, merging with a trailing Delete.
func (o *OperationSeq) Delete(n int) {
	if n <= 0 {
		return
	}
	o.baseLen += n

	if last := len(o.ops) - 1; last >= 0 {
		if d, ok := o.ops[last].(Delete); ok {
			o.ops[last] = Delete{N: d.N + n}
			return
		}
	}
	o.ops = append(o.ops, Delete{N: n})
}

// Insert appends an Insert(s) component. Mirrors the teacher builder's
// merge rules: merge into a trailing Insert, and merge into an Insert that
// sits just before a trailing Delete (keeping Insert-before-Delete
// canonical order) rather than appending a separate Insert after the
// Delete.
func (o *OperationSeq) Insert(s string) {
	if s == "" {
		return
	}
	o.targetLen += utf16Len(s)

	n := len(o.ops)
	if n == 0 {
		o.ops = append(o.ops, Insert{S: s})
		return
	}

	if ins, ok := o.ops[n-1].(Insert); ok {
		o.ops[n-1] = Insert{S: ins.S + s}
		return
	}

	if n >= 2 {
		if _, ok := o.ops[n-1].(Delete); ok {
			if ins, ok := o.ops[n-2].(Insert); ok {
				o.ops[n-2] = Insert{S: ins.S + s}
				return
			}
		}
	}

	if del, ok := o.ops[n-1].(Delete); ok {
		o.ops[n-1] = Insert{S: s}
		o.ops = append(o.ops, del)
		return
	}

	o.ops = append(o.ops, Insert{S: s})
}

// add appends any component through its coalescing builder method.
func (o *OperationSeq) add(c Component) {
	switch v := c.(type) {
	case Retain:
		o.Retain(v.N)
	case Delete:
		o.Delete(v.N)
	case Insert:
		o.Insert(v.S)
	}
}

// splitTake splits c into the first k UTF-16 units and the remainder. If k
// consumes all of c, the remainder is nil.
func splitTake(c Component, k int) (taken Component, rest Component) {
	switch v := c.(type) {
	case Retain:
		if k >= v.N {
			return v, nil
		}
		return Retain{N: k}, Retain{N: v.N - k}
	case Delete:
		if k >= v.N {
			return v, nil
		}
		return Delete{N: k}, Delete{N: v.N - k}
	case Insert:
		units := toUTF16(v.S)
		if k >= len(units) {
			return v, nil
		}
		return Insert{S: fromUTF16(units[:k])}, Insert{S: fromUTF16(units[k:])}
	}
	return nil, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
