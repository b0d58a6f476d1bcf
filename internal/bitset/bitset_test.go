package bitset

import "testing"

func TestSetClearGet(t *testing.T) {
	s := New(16)
	if s.Get(3) {
		t.Fatalf("expected bit 3 clear on new set")
	}
	s.Set(3)
	if !s.Get(3) {
		t.Fatalf("expected bit 3 set")
	}
	s.Clear(3)
	if s.Get(3) {
		t.Fatalf("expected bit 3 clear after Clear")
	}
}

func TestCount(t *testing.T) {
	s := FromUint64(16, 0b0000000011001100)
	if got := s.Count(); got != 4 {
		t.Fatalf("Count() = %d, want 4", got)
	}
}

func TestNthSetBit(t *testing.T) {
	s := FromUint64(16, 0b0000000011001100)
	// set bits are 2,3,6,7 (ascending)
	want := []int{2, 3, 6, 7}
	for i, w := range want {
		if got := s.NthSet(i + 1); got != w {
			t.Fatalf("NthSet(%d) = %d, want %d", i+1, got, w)
		}
	}
}

func TestNthSetInversePopcountProperty(t *testing.T) {
	s := FromUint64(16, 0b1010110100110101)
	for n := 1; n <= s.Count(); n++ {
		i := s.NthSet(n)
		if !s.Get(uint(i)) {
			t.Fatalf("NthSet(%d)=%d but bit not set", n, i)
		}
		// popcount of [0..i] must equal n
		prefix := s.Clone()
		for b := uint(i + 1); b < prefix.Width(); b++ {
			prefix.Clear(b)
		}
		if got := prefix.Count(); got != n {
			t.Fatalf("prefix popcount at NthSet(%d)=%d is %d, want %d", n, i, got, n)
		}
	}
}

func TestClearAll(t *testing.T) {
	s := FromUint64(16, 0xFFFF)
	s.ClearAll()
	if s.Count() != 0 {
		t.Fatalf("expected 0 bits after ClearAll, got %d", s.Count())
	}
}

func TestLoadStoreRoundTrip(t *testing.T) {
	s := New(16)
	s.Load(0b0011001100110011)
	if got := s.Store(); got != 0b0011001100110011 {
		t.Fatalf("Store() = %b, want %b", got, 0b0011001100110011)
	}
}

func TestOutOfRangePanics(t *testing.T) {
	s := New(4)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on out-of-range bit access")
		}
	}()
	s.Set(4)
}
