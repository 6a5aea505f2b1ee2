package ot

import "fmt"

// Apply applies op to s, producing the transformed string. s and the result
// are measured in UTF-16 code units when checked against BaseLen/TargetLen,
// even though both are represented as Go UTF-8 strings.
func Apply(op *OperationSeq, s string) (string, error) {
	units := toUTF16(s)
	if len(units) != op.baseLen {
		return "", fmt.Errorf("ot: apply: base length mismatch: operation expects %d, got %d: %w", op.baseLen, len(units), ErrIncompatibleLengths)
	}

	result := make([]uint16, 0, op.targetLen)
	pos := 0
	for _, c := range op.ops {
		switch v := c.(type) {
		case Retain:
			result = append(result, units[pos:pos+v.N]...)
			pos += v.N
		case Insert:
			result = append(result, toUTF16(v.S)...)
		case Delete:
			pos += v.N
		}
	}
	return fromUTF16(result), nil
}
