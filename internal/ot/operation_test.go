package ot

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// build constructs an OperationSeq from a compact description: positive
// ints are Retain, negative ints are Delete, strings are Insert.
func build(parts ...interface{}) *OperationSeq {
	op := New()
	for _, p := range parts {
		switch v := p.(type) {
		case int:
			if v >= 0 {
				op.Retain(v)
			} else {
				op.Delete(-v)
			}
		case string:
			op.Insert(v)
		}
	}
	return op
}

func TestBuilderCoalescesAdjacentComponents(t *testing.T) {
	op := build(3, 2, "ab", "cd", -1, -2)
	require.Equal(t, []Component{Retain{N: 5}, Insert{S: "abcd"}, Delete{N: 3}}, op.Ops())
}

func TestBuilderKeepsInsertBeforeTrailingDelete(t *testing.T) {
	op := New()
	op.Delete(2)
	op.Insert("x")
	require.Equal(t, []Component{Insert{S: "x"}, Delete{N: 2}}, op.Ops())
}

func TestIsNoop(t *testing.T) {
	require.True(t, New().IsNoop())
	require.True(t, build(5).IsNoop())
	require.False(t, build(5, "x").IsNoop())
}

func TestApplyDomain(t *testing.T) {
	op := build(2, "x", -1)
	_, err := Apply(op, "ab")
	require.Error(t, err, "base len is 3, not 2")

	out, err := Apply(op, "abc")
	require.NoError(t, err)
	require.Equal(t, "abx", out)
}

func TestApplyLengthConservation(t *testing.T) {
	op := build(1, "hello", -2)
	s := "a12"
	out, err := Apply(op, s)
	require.NoError(t, err)
	require.Equal(t, op.TargetLen(), utf16Len(out))
}

func TestApplyUTF16SurrogatePairs(t *testing.T) {
	// U+1F600 (grinning face) is a surrogate pair in UTF-16: 2 code units.
	emoji := "\U0001F600"
	op := New()
	op.Insert(emoji)
	require.Equal(t, 2, op.TargetLen())

	out, err := Apply(op, "")
	require.NoError(t, err)
	require.Equal(t, emoji, out)

	// Deleting just the first surrogate half should leave one code unit
	// (the lone trailing surrogate, which decodes to U+FFFD), proving
	// slicing happens in code units not runes/bytes.
	del := New()
	del.Delete(1)
	del.Retain(1)
	out2, err := Apply(del, emoji)
	require.NoError(t, err)
	require.NotEqual(t, emoji, out2)
	require.Equal(t, 1, utf16Len(out2))
}

func TestComposeCorrectness(t *testing.T) {
	a := build(1, "CDE", -2, 2)
	s := "abcde"
	mid, err := Apply(a, s)
	require.NoError(t, err)

	b := New()
	b.Retain(1)
	b.Delete(3)
	b.Insert("Z")
	b.Retain(2)
	require.Equal(t, a.TargetLen(), b.BaseLen())

	final, err := Apply(b, mid)
	require.NoError(t, err)

	composed, err := Compose(a, b)
	require.NoError(t, err)

	viaCompose, err := Apply(composed, s)
	require.NoError(t, err)

	require.Equal(t, final, viaCompose)
}

func TestTransformConvergenceTP1(t *testing.T) {
	s := "hello world"
	a := New()
	a.Retain(5)
	a.Insert("!!")
	a.Retain(6)

	b := New()
	b.Retain(11)
	b.Insert("?")

	require.Equal(t, a.BaseLen(), utf16Len(s))
	require.Equal(t, b.BaseLen(), utf16Len(s))

	aPrime, bPrime, err := Transform(a, b)
	require.NoError(t, err)

	lhsMid, err := Apply(a, s)
	require.NoError(t, err)
	lhs, err := Apply(bPrime, lhsMid)
	require.NoError(t, err)

	rhsMid, err := Apply(b, s)
	require.NoError(t, err)
	rhs, err := Apply(aPrime, rhsMid)
	require.NoError(t, err)

	require.Equal(t, lhs, rhs)
}

func TestTransformTieBreakFirstArgumentWins(t *testing.T) {
	s := ""
	a := New()
	a.Insert("X")
	b := New()
	b.Insert("Y")

	aPrime, bPrime, err := Transform(a, b)
	require.NoError(t, err)

	finalViaA, err := Apply(a, s)
	require.NoError(t, err)
	finalViaA, err = Apply(bPrime, finalViaA)
	require.NoError(t, err)

	finalViaB, err := Apply(b, s)
	require.NoError(t, err)
	finalViaB, err = Apply(aPrime, finalViaB)
	require.NoError(t, err)

	require.Equal(t, finalViaA, finalViaB)
	require.Equal(t, "XY", finalViaA)
}

func TestTransformDeleteVsInsertSameRegion(t *testing.T) {
	// S3 from the spec: "abcdef" at a shared revision.
	s := "abcdef"
	a := New()
	a.Retain(3)
	a.Delete(3) // delete "def"

	b := New()
	b.Retain(3)
	b.Insert("X")
	b.Retain(3)

	aPrime, bPrime, err := Transform(a, b)
	require.NoError(t, err)

	afterA, err := Apply(a, s)
	require.NoError(t, err)
	require.Equal(t, "abc", afterA)

	committed, err := Apply(bPrime, afterA)
	require.NoError(t, err)
	require.Equal(t, "abcX", committed)

	// And the other client, rebasing against a's delete.
	require.Equal(t, []Component{Retain{N: 3}, Insert{S: "X"}}, bPrime.Ops())
	_ = aPrime
}

func TestTransformConcurrentDeleteSameRegionSkipsBoth(t *testing.T) {
	s := "abcdef"
	a := New()
	a.Retain(2)
	a.Delete(2)
	a.Retain(2)

	b := New()
	b.Retain(2)
	b.Delete(2)
	b.Retain(2)

	aPrime, bPrime, err := Transform(a, b)
	require.NoError(t, err)

	mid, err := Apply(a, s)
	require.NoError(t, err)
	lhs, err := Apply(bPrime, mid)
	require.NoError(t, err)
	require.Equal(t, "abef", lhs)

	mid2, err := Apply(b, s)
	require.NoError(t, err)
	rhs, err := Apply(aPrime, mid2)
	require.NoError(t, err)
	require.Equal(t, lhs, rhs)
}

func TestCanonicalizationIdempotence(t *testing.T) {
	op := build(2, "ab", -3)
	again := New()
	for _, c := range op.Ops() {
		again.add(c)
	}
	require.Equal(t, op.Ops(), again.Ops())
}

func TestTransformCursorInsertDoesNotPushAtExactPosition(t *testing.T) {
	// S5 from the spec: an insert landing exactly at the cursor's position
	// leaves the cursor in place, regardless of how long the insert is.
	op := New()
	op.Retain(5)
	op.Insert("!!")
	op.Retain(6)
	require.Equal(t, 5, TransformCursor(5, op))

	op2 := New()
	op2.Retain(5)
	op2.Insert("x")
	op2.Retain(6)
	require.Equal(t, 5, TransformCursor(5, op2))
}

func TestTransformCursorInsertPushesCursorStrictlyAfter(t *testing.T) {
	// A cursor sitting strictly past the insert point is pushed by the
	// insert's length.
	op := New()
	op.Retain(5)
	op.Insert("!!")
	op.Retain(6)
	require.Equal(t, 9, TransformCursor(7, op))
}

func TestTransformCursorSnapsIntoDeleteStart(t *testing.T) {
	op := New()
	op.Retain(2)
	op.Delete(3)
	op.Retain(1)

	require.Equal(t, 2, TransformCursor(3, op))
	require.Equal(t, 2, TransformCursor(4, op))
	require.Equal(t, 2, TransformCursor(5, op))
	require.Equal(t, 2, TransformCursor(2, op))
	require.Equal(t, 3, TransformCursor(6, op))
}

func TestWireFormatRoundTrip(t *testing.T) {
	op := build(3, "hi", -2)
	data, err := op.MarshalJSON()
	require.NoError(t, err)
	require.JSONEq(t, `[3,"hi",-2]`, string(data))

	var decoded OperationSeq
	require.NoError(t, decoded.UnmarshalJSON(data))
	require.Equal(t, op.Ops(), decoded.Ops())
}

func TestWireFormatCanonicalizesOnDecode(t *testing.T) {
	var decoded OperationSeq
	require.NoError(t, decoded.UnmarshalJSON([]byte(`[1,1,"a","b",-1,-1]`)))
	require.Equal(t, []Component{Retain{N: 2}, Insert{S: "ab"}, Delete{N: 2}}, decoded.Ops())
}

func TestInvertRoundTrip(t *testing.T) {
	s := "hello world"
	op := New()
	op.Retain(6)
	op.Delete(5)
	op.Insert("there")

	applied, err := Apply(op, s)
	require.NoError(t, err)
	require.Equal(t, "hello there", applied)

	inv := Invert(op, s)
	restored, err := Apply(inv, applied)
	require.NoError(t, err)
	require.Equal(t, s, restored)
}

// Randomized check of properties 1-4 from the spec's testable properties
// section, over small random strings and operations.
func TestRandomizedAlgebraicInvariants(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	alphabet := []rune("abcde é\U0001F600")

	randomString := func(n int) string {
		out := make([]rune, n)
		for i := range out {
			out[i] = alphabet[r.Intn(len(alphabet))]
		}
		return string(out)
	}

	randomOp := func(base string) *OperationSeq {
		units := utf16Len(base)
		op := New()
		remaining := units
		for remaining > 0 {
			switch r.Intn(3) {
			case 0:
				n := 1 + r.Intn(remaining)
				op.Retain(n)
				remaining -= n
			case 1:
				n := 1 + r.Intn(remaining)
				op.Delete(n)
				remaining -= n
			case 2:
				op.Insert(randomString(1 + r.Intn(3)))
			}
		}
		if r.Intn(2) == 0 {
			op.Insert(randomString(1 + r.Intn(3)))
		}
		return op
	}

	for i := 0; i < 200; i++ {
		s := randomString(r.Intn(8))
		a := randomOp(s)
		require.Equal(t, utf16Len(s), a.BaseLen())

		applied, err := Apply(a, s)
		require.NoError(t, err)
		require.Equal(t, a.TargetLen(), utf16Len(applied))

		b := randomOp(applied)
		require.Equal(t, a.TargetLen(), b.BaseLen())

		composed, err := Compose(a, b)
		require.NoError(t, err)
		direct, err := Apply(b, applied)
		require.NoError(t, err)
		viaComposed, err := Apply(composed, s)
		require.NoError(t, err)
		require.Equal(t, direct, viaComposed)

		c := randomOp(s)
		aPrime, cPrime, err := Transform(a, c)
		require.NoError(t, err)

		lhsMid, err := Apply(a, s)
		require.NoError(t, err)
		lhs, err := Apply(cPrime, lhsMid)
		require.NoError(t, err)

		rhsMid, err := Apply(c, s)
		require.NoError(t, err)
		rhs, err := Apply(aPrime, rhsMid)
		require.NoError(t, err)

		require.Equal(t, lhs, rhs)
	}
}
