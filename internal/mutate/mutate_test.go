package mutate

import (
	"bytes"
	"errors"
	"testing"
)

func TestApplyXOR(t *testing.T) {
	msg := []byte{0x01, 0x02, 0x03, 0x04}
	m := XORs(map[int]byte{1: 0xFF, 3: 0x0F})

	out, err := Apply(msg, m)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	want := []byte{0x01, 0xFD, 0x03, 0x0B}
	if !bytes.Equal(out, want) {
		t.Errorf("Apply = %x, want %x", out, want)
	}
}

func TestApplySubstitute(t *testing.T) {
	msg := []byte{0x01, 0x02, 0x03}
	m := Substitutions(map[int]byte{0: 0xAA, 2: 0xBB})

	out, err := Apply(msg, m)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	want := []byte{0xAA, 0x02, 0xBB}
	if !bytes.Equal(out, want) {
		t.Errorf("Apply = %x, want %x", out, want)
	}
}

func TestApplyDoesNotModifyInput(t *testing.T) {
	msg := []byte{0x01, 0x02, 0x03}
	orig := append([]byte(nil), msg...)

	if _, err := Apply(msg, Substitutions(map[int]byte{1: 0xFF})); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !bytes.Equal(msg, orig) {
		t.Errorf("input modified: %x, want %x", msg, orig)
	}
}

func TestApplyNilMutation(t *testing.T) {
	msg := []byte{0x01, 0x02}
	out, err := Apply(msg, nil)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !bytes.Equal(out, msg) {
		t.Errorf("Apply = %x, want %x", out, msg)
	}
}

func TestApplyDeterministic(t *testing.T) {
	msg := []byte{0x10, 0x20, 0x30, 0x40}
	m := Merge(
		XORs(map[int]byte{0: 0x01}),
		Substitutions(map[int]byte{3: 0x99}),
	)

	first, err := Apply(msg, m)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	second, err := Apply(msg, m)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("Apply not deterministic: %x vs %x", first, second)
	}
}

func TestApplyOutOfRange(t *testing.T) {
	tests := []struct {
		name   string
		offset int
	}{
		{"beyond end", 4},
		{"negative", -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Mutation{tt.offset: Op{Kind: OpXOR, Value: 0x01}}
			_, err := Apply([]byte{1, 2, 3, 4}, m)
			var oor *OutOfRangeError
			if !errors.As(err, &oor) {
				t.Fatalf("Apply error = %v, want OutOfRangeError", err)
			}
			if oor.Offset != tt.offset || oor.Length != 4 {
				t.Errorf("error fields = {%d %d}, want {%d 4}", oor.Offset, oor.Length, tt.offset)
			}
		})
	}
}

func TestMergeLaterWins(t *testing.T) {
	m := Merge(
		XORs(map[int]byte{0: 0x01}),
		Substitutions(map[int]byte{0: 0xFF}),
	)
	op, ok := m[0]
	if !ok {
		t.Fatal("offset 0 missing after Merge")
	}
	if op.Kind != OpSubstitute || op.Value != 0xFF {
		t.Errorf("Merge kept %v 0x%02X, want substitute 0xFF", op.Kind, op.Value)
	}
}

func TestOffsetsSorted(t *testing.T) {
	m := XORs(map[int]byte{40: 1, 0: 1, 38: 1})
	got := m.Offsets()
	want := []int{0, 38, 40}
	if len(got) != len(want) {
		t.Fatalf("Offsets = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Offsets = %v, want %v", got, want)
			break
		}
	}
}

func TestMutationString(t *testing.T) {
	tests := []struct {
		name string
		m    Mutation
		want string
	}{
		{"empty", nil, "no-op"},
		{"xor", XORs(map[int]byte{43: 0x09}), "xor[43]=0x09"},
		{"substitute", Substitutions(map[int]byte{38: 0xFF}), "substitute[38]=0xFF"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.m.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}
