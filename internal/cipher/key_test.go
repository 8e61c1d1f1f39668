package cipher

import (
	"bytes"
	"encoding/hex"
	"testing"
)

func TestKeyDeterministicAndSized(t *testing.T) {
	k1 := Key("3135556")
	k2 := Key("3135556")
	if k1 != k2 {
		t.Errorf("Key() is not deterministic: %x != %x", k1, k2)
	}
	if len(k1) != KeySize {
		t.Errorf("len(Key()) = %d, want %d", len(k1), KeySize)
	}
}

func TestKeyKnownVector(t *testing.T) {
	want, err := hex.DecodeString("6adf7202484a1d606b60121c4a3f4610")
	if err != nil {
		t.Fatalf("bad test fixture: %v", err)
	}

	got := Key("3135556")
	if !bytes.Equal(got[:], want) {
		t.Errorf("Key(\"3135556\") = %x, want %x", got, want)
	}
}

func TestKeyVariesByTrack(t *testing.T) {
	a := Key("3135556")
	b := Key("3135557")
	if a == b {
		t.Errorf("expected different keys for different track ids")
	}
}
