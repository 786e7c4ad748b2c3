package conflux

import "testing"

func TestZSetAddContains(t *testing.T) {
	zs := NewZSet()
	a := Zb(P_256, []byte("digest-a"))
	b := Zb(P_256, []byte("digest-b"))
	zs.Add(a)
	if !zs.Contains(a) {
		t.Error("expected set to contain a")
	}
	if zs.Contains(b) {
		t.Error("expected set not to contain b")
	}
	if zs.Len() != 1 {
		t.Errorf("Len() = %d, want 1", zs.Len())
	}
}

func TestZSetDiff(t *testing.T) {
	a := NewZSet(Zb(P_256, []byte("one")), Zb(P_256, []byte("two")))
	b := NewZSet(Zb(P_256, []byte("two")), Zb(P_256, []byte("three")))
	diff := ZSetDiff(a, b)
	if diff.Len() != 1 {
		t.Fatalf("ZSetDiff len = %d, want 1", diff.Len())
	}
	if !diff.Contains(Zb(P_256, []byte("one"))) {
		t.Error("expected diff to contain 'one'")
	}
}

func TestZpRoundTrip(t *testing.T) {
	z := Zb(P_256, []byte{0x01, 0x02, 0x03})
	z2 := Zb(P_256, z.Bytes())
	if z.Cmp(z2) != 0 {
		t.Error("expected round-tripped Zp to compare equal")
	}
}
