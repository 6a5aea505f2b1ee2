package ot

// TransformCursor transports a single cursor position (UTF-16 code units)
// across op, treating op as concurrent with the cursor owner's intent.
//
// Ported from the teacher's pkg/server/kolabpad.go transformIndex (itself
// tracking rustpad-server/src/ot.rs), with one correction: the teacher's
// version unconditionally pushes the cursor right on any Insert it hasn't
// yet broken out of, which also pushes an insert landing exactly at the
// cursor. Spec requires such inserts to leave the cursor in place, so the
// Insert case below only pushes when the component starts strictly before
// the cursor's original base offset (index > 0), not at or after it.
func TransformCursor(pos int, op *OperationSeq) int {
	index := pos
	newIndex := pos

	for _, c := range op.Ops() {
		switch v := c.(type) {
		case Retain:
			index -= v.N
		case Insert:
			if index > 0 {
				newIndex += utf16Len(v.S)
			}
		case Delete:
			if index >= v.N {
				newIndex -= v.N
			} else if index > 0 {
				newIndex -= index
			}
			index -= v.N
		}
		if index < 0 {
			break
		}
	}

	if newIndex < 0 {
		return 0
	}
	return newIndex
}

// TransformSelection transports an (anchor, head) selection range across op.
func TransformSelection(anchor, head int, op *OperationSeq) (int, int) {
	return TransformCursor(anchor, op), TransformCursor(head, op)
}
