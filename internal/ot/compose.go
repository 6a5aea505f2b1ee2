package ot

// Compose produces an operation equivalent to applying a then b.
// Requires a.TargetLen() == b.BaseLen().
func Compose(a, b *OperationSeq) (*OperationSeq, error) {
	if a.targetLen != b.baseLen {
		return nil, ErrIncompatibleLengths
	}

	result := WithCapacity(len(a.ops) + len(b.ops))

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
		if d, ok := op1.(Delete); ok {
			result.Delete(d.N)
			op1 = nextA()
			continue
		}
		if ins, ok := op2.(Insert); ok {
			result.Insert(ins.S)
			op2 = nextB()
			continue
		}
		if op1 == nil || op2 == nil {
			return nil, ErrIncompatibleLengths
		}

		n := min(componentLen(op1), componentLen(op2))
		t1, r1 := splitTake(op1, n)
		t2, r2 := splitTake(op2, n)

		switch v1 := t1.(type) {
		case Retain:
			switch t2.(type) {
			case Retain:
				result.Retain(n)
			case Delete:
				result.Delete(n)
			}
		case Insert:
			switch t2.(type) {
			case Retain:
				result.Insert(v1.S)
			case Delete:
				// insert immediately deleted: cancels out, emit nothing
			}
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

	return result, nil
}
