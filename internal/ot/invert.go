package ot

// Invert produces the inverse of op given the pre-image string s (the text
// op was built against), for a client-local undo buffer. Not used by the
// session's OT core — undo is a client concern (spec Non-goals) — but kept
// for parity with the teacher's WASM bridge, which exposed the same
// operation.
func Invert(op *OperationSeq, s string) *OperationSeq {
	units := toUTF16(s)
	inverse := WithCapacity(len(op.ops))
	pos := 0
	for _, c := range op.ops {
		switch v := c.(type) {
		case Retain:
			inverse.Retain(v.N)
			pos += v.N
		case Insert:
			inverse.Delete(utf16Len(v.S))
		case Delete:
			inverse.Insert(fromUTF16(units[pos : pos+v.N]))
			pos += v.N
		}
	}
	return inverse
}
