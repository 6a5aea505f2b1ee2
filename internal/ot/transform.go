package ot

// Transform produces (a', b') such that compose(a, b') == compose(b, a'),
// the TP1 convergence property. Requires a.BaseLen() == b.BaseLen().
//
// Tie-break: when both sides insert at the same offset, a's insertion is
// placed before b's insertion in the reconciled state — the first
// argument wins. Callers that submit the concurrent operation as the
// second argument (the common "rebase my op against history" shape) get
// history-first ordering for free; the submission algorithm in
// internal/session relies on exactly this.
func Transform(a, b *OperationSeq) (aPrime, bPrime *OperationSeq, err error) {
	if a.baseLen != b.baseLen {
		return nil, nil, ErrIncompatibleLengths
	}

	aPrime = WithCapacity(len(a.ops))
	bPrime = WithCapacity(len(b.ops))

	i, j := 0, 0
	nextA := func() Component {
		if i < len(a.ops) {
			c := a.ops[i]
			i++
			return c
		}
		return nil
	}
	nextB := func() Component {
		if j < len(b.ops) {
			c := b.ops[j]
			j++
			return c
		}
		return nil
	}

	op1, op2 := nextA(), nextB()
	for op1 != nil || op2 != nil {
		if ins, ok := op1.(Insert); ok {
			aPrime.Insert(ins.S)
			bPrime.Retain(utf16Len(ins.S))
			op1 = nextA()
			continue
		}
		if ins, ok := op2.(Insert); ok {
			bPrime.Insert(ins.S)
			aPrime.Retain(utf16Len(ins.S))
			op2 = nextB()
			continue
		}
		if op1 == nil || op2 == nil {
			return nil, nil, ErrIncompatibleLengths
		}

		n := min(componentLen(op1), componentLen(op2))
		t1, r1 := splitTake(op1, n)
		t2, r2 := splitTake(op2, n)

		_, del1 := t1.(Delete)
		_, del2 := t2.(Delete)
		switch {
		case del1 && del2:
			// concurrent delete of the same region: skip on both sides
		case del1 && !del2:
			aPrime.Delete(n)
		case !del1 && del2:
			bPrime.Delete(n)
		default:
			aPrime.Retain(n)
			bPrime.Retain(n)
		}

		if r1 != nil {
			op1 = r1
		} else {
			op1 = nextA()
		}
		if r2 != nil {
			op2 = r2
		} else {
			op2 = nextB()
		}
	}

	return aPrime, bPrime, nil
}
