package bitfield

import "testing"

type sample struct {
	Tag   uint8  `bitfield:",2"`
	Found bool   `bitfield:",1"`
	Size  uint8  `bitfield:",6"`
	Ptrs  uint64 `bitfield:",55"`
}

func TestPackUnpackRoundTrip(t *testing.T) {
	cases := []sample{
		{Tag: 0, Found: false, Size: 0, Ptrs: 0},
		{Tag: 1, Found: true, Size: 3, Ptrs: 0b101},
		{Tag: 2, Found: false, Size: 63, Ptrs: (1 << 55) - 1},
	}

	for _, want := range cases {
		packed, err := Pack(&want, &Config{NumBits: 64})
		if err != nil {
			t.Fatalf("Pack() error = %v", err)
		}

		var got sample
		if err := Unpack(packed, &got, &Config{NumBits: 64}); err != nil {
			t.Fatalf("Unpack() error = %v", err)
		}
		if got != want {
			t.Errorf("round trip = %+v, want %+v", got, want)
		}
	}
}

func TestPackRejectsOverflow(t *testing.T) {
	s := sample{Size: 0xFF} // 8 bits, field only has 6
	if _, err := Pack(&s, &Config{NumBits: 64}); err == nil {
		t.Errorf("Pack() expected overflow error, got nil")
	}
}

func TestPackRejectsNonStruct(t *testing.T) {
	if _, err := Pack(42, &Config{NumBits: 64}); err == nil {
		t.Errorf("Pack() expected error for non-struct, got nil")
	}
}

func TestUnpackRejectsNonPointer(t *testing.T) {
	if err := Unpack(0, sample{}, &Config{NumBits: 64}); err == nil {
		t.Errorf("Unpack() expected error for non-pointer dst, got nil")
	}
}
