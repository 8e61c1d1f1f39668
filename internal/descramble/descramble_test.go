package descramble

import (
	"bytes"
	stdcipher "crypto/cipher"
	"io"
	"testing"

	"golang.org/x/crypto/blowfish"

	trackcipher "github.com/deezer-stream/streamproxy/internal/cipher"
)

func testKey() [16]byte {
	return trackcipher.Key("3135556")
}

// scramble is the inverse of Reader: it encrypts every third segment
// (n > 0, n mod 3 == 0), leaving segment 0 and the trailing short segment
// untouched, so that feeding the result through Reader recovers the
// original plaintext exactly.
func scramble(plaintext []byte, key [16]byte) []byte {
	out := make([]byte, len(plaintext))
	copy(out, plaintext)

	segIdx := 0
	for off := 0; off+SegmentSize <= len(out); off += SegmentSize {
		if segIdx > 0 && segIdx%3 == 0 {
			block, err := blowfish.NewCipher(key[:])
			if err != nil {
				panic(err)
			}
			mode := stdcipher.NewCBCEncrypter(block, iv)
			mode.CryptBlocks(out[off:off+SegmentSize], out[off:off+SegmentSize])
		}
		segIdx++
	}
	return out
}

func sequentialBytes(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 256)
	}
	return b
}

func mustReadAll(t *testing.T, r io.Reader) []byte {
	t.Helper()
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	return out
}

func TestSegmentZeroAlwaysClear(t *testing.T) {
	key := testKey()
	upstream := scramble(sequentialBytes(SegmentSize*3), key)

	out := mustReadAll(t, NewReader(bytes.NewReader(upstream), key))
	if !bytes.Equal(out[:SegmentSize], upstream[:SegmentSize]) {
		t.Errorf("segment 0 was modified")
	}
}

func TestNonQualifyingSegmentsPassThrough(t *testing.T) {
	key := testKey()
	// Three segments: indices 0, 1, 2. None qualify (only index>0 && idx%3==0).
	plaintext := sequentialBytes(SegmentSize * 3)
	upstream := scramble(plaintext, key)

	out := mustReadAll(t, NewReader(bytes.NewReader(upstream), key))
	if !bytes.Equal(out, plaintext) {
		t.Errorf("expected all three segments to round-trip unmodified")
	}
	if !bytes.Equal(upstream, plaintext) {
		t.Errorf("scramble() fixture should be a no-op for segments 0-2")
	}
}

func TestQualifyingSegmentIsDecrypted(t *testing.T) {
	key := testKey()
	// Four segments: index 3 (3 mod 3 == 0, > 0) qualifies.
	plaintext := sequentialBytes(SegmentSize * 4)
	upstream := scramble(plaintext, key)

	if bytes.Equal(upstream[3*SegmentSize:4*SegmentSize], plaintext[3*SegmentSize:4*SegmentSize]) {
		t.Fatalf("fixture bug: segment 3 should differ once scrambled")
	}

	out := mustReadAll(t, NewReader(bytes.NewReader(upstream), key))
	if !bytes.Equal(out, plaintext) {
		t.Errorf("descrambled output does not match original plaintext")
	}
}

func TestTrailingByteVerbatim(t *testing.T) {
	key := testKey()
	plaintext := append(sequentialBytes(SegmentSize*3), 0xAB)
	upstream := scramble(plaintext, key)

	out := mustReadAll(t, NewReader(bytes.NewReader(upstream), key))
	if len(out) != len(upstream) {
		t.Fatalf("len(out) = %d, want %d", len(out), len(upstream))
	}
	if out[len(out)-1] != 0xAB {
		t.Errorf("trailing byte was not passed through verbatim")
	}
}

func TestOutputLengthMatchesInput(t *testing.T) {
	key := testKey()
	for _, n := range []int{0, 1, SegmentSize - 1, SegmentSize, SegmentSize + 1, SegmentSize * 4, SegmentSize*4 + 37} {
		plaintext := sequentialBytes(n)
		upstream := scramble(plaintext, key)
		out := mustReadAll(t, NewReader(bytes.NewReader(upstream), key))
		if len(out) != n {
			t.Errorf("n=%d: len(out) = %d, want %d", n, len(out), n)
		}
		if !bytes.Equal(out, plaintext) {
			t.Errorf("n=%d: round-trip mismatch", n)
		}
	}
}

func TestShortReadsAreReassembled(t *testing.T) {
	key := testKey()
	plaintext := sequentialBytes(SegmentSize*4 + 100)
	upstream := scramble(plaintext, key)

	// Force the source to hand back bytes one at a time to exercise the
	// pending-buffer reassembly path.
	out := mustReadAll(t, NewReader(&byteAtATimeReader{data: upstream}, key))
	if !bytes.Equal(out, plaintext) {
		t.Errorf("round-trip mismatch when source yields one byte per Read")
	}
}

type byteAtATimeReader struct {
	data []byte
	pos  int
}

func (r *byteAtATimeReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	p[0] = r.data[r.pos]
	r.pos++
	return 1, nil
}
