package mutate

// Byte-level mutation of serialized messages. Mutations are in-place
// corruptions: the output length always equals the input length, and the
// same input with the same mutation set always yields the same output.

import (
	"fmt"
	"sort"
)

// OpKind selects the mutation operation at one offset.
type OpKind int

// Mutation operations.
const (
	// OpXOR sets output[offset] = input[offset] ^ value.
	OpXOR OpKind = iota
	// OpSubstitute sets output[offset] = value.
	OpSubstitute
)

func (k OpKind) String() string {
	switch k {
	case OpXOR:
		return "xor"
	case OpSubstitute:
		return "substitute"
	default:
		return fmt.Sprintf("{OpKind %d}", int(k))
	}
}

// Op is one mutation operation.
type Op struct {
	Kind  OpKind
	Value byte
}

// Mutation maps byte offsets to operations. A nil Mutation applies
// nothing.
type Mutation map[int]Op

// XORs builds a mutation XOR-ing each offset with its value.
func XORs(offsets map[int]byte) Mutation {
	m := make(Mutation, len(offsets))
	for off, v := range offsets {
		m[off] = Op{Kind: OpXOR, Value: v}
	}
	return m
}

// Substitutions builds a mutation replacing each offset with its value.
func Substitutions(offsets map[int]byte) Mutation {
	m := make(Mutation, len(offsets))
	for off, v := range offsets {
		m[off] = Op{Kind: OpSubstitute, Value: v}
	}
	return m
}

// Merge combines mutations into one. Later arguments win on offset
// collisions.
func Merge(ms ...Mutation) Mutation {
	out := make(Mutation)
	for _, m := range ms {
		for off, op := range m {
			out[off] = op
		}
	}
	return out
}

// Offsets returns the mutated offsets in ascending order.
func (m Mutation) Offsets() []int {
	offs := make([]int, 0, len(m))
	for off := range m {
		offs = append(offs, off)
	}
	sort.Ints(offs)
	return offs
}

func (m Mutation) String() string {
	if len(m) == 0 {
		return "no-op"
	}
	s := ""
	for i, off := range m.Offsets() {
		if i > 0 {
			s += ", "
		}
		op := m[off]
		s += fmt.Sprintf("%v[%d]=0x%02X", op.Kind, off, op.Value)
	}
	return s
}

// OutOfRangeError reports a mutation offset beyond the message bounds.
// This is a scenario-construction bug, not a target behavior.
type OutOfRangeError struct {
	Offset int
	Length int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("mutation offset %d out of range for %d-byte message", e.Offset, e.Length)
}

// Apply returns a copy of msg with the mutation applied. msg itself is
// never modified.
func Apply(msg []byte, m Mutation) ([]byte, error) {
	out := append([]byte(nil), msg...)
	for off, op := range m {
		if off < 0 || off >= len(out) {
			return nil, &OutOfRangeError{Offset: off, Length: len(out)}
		}
		switch op.Kind {
		case OpXOR:
			out[off] ^= op.Value
		case OpSubstitute:
			out[off] = op.Value
		default:
			return nil, fmt.Errorf("unknown mutation op %v at offset %d", op.Kind, off)
		}
	}
	return out, nil
}
