package ot

import (
	"encoding/json"
	"fmt"
)

// MarshalJSON renders the operation in the wire format shared with the
// browser editor: a JSON array where a positive integer is Retain(n), a
// negative integer is Delete(-n), and a string is Insert(s).
func (o *OperationSeq) MarshalJSON() ([]byte, error) {
	raw := make([]interface{}, 0, len(o.ops))
	for _, c := range o.ops {
		switch v := c.(type) {
		case Retain:
			raw = append(raw, v.N)
		case Delete:
			raw = append(raw, -v.N)
		case Insert:
			raw = append(raw, v.S)
		}
	}
	if raw == nil {
		raw = []interface{}{}
	}
	return json.Marshal(raw)
}

// UnmarshalJSON parses the wire format and canonicalizes the result through
// the normal coalescing builder methods, per spec: servers must
// canonicalize received operations before processing them.
func (o *OperationSeq) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("ot: unmarshal operation: %w", err)
	}

	*o = OperationSeq{ops: make([]Component, 0, len(raw))}
	for _, item := range raw {
		var n float64
		if err := json.Unmarshal(item, &n); err == nil {
			switch {
			case n > 0:
				o.Retain(int(n))
			case n < 0:
				o.Delete(int(-n))
			default:
				// zero-length component: ignored, per canonical form
			}
			continue
		}

		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			o.Insert(s)
			continue
		}

		return fmt.Errorf("ot: unmarshal operation: component %s is neither a number nor a string", item)
	}
	return nil
}
