// Package descramble implements Provider-D's chunk-level descrambling
// protocol: every third 2048-byte segment of a track's byte stream is a
// Blowfish-CBC ciphertext, the rest (including the trailing short segment)
// is plaintext. The transform is a pure io.Reader wrapper with no network
// or concurrency dependency, so it is unit-testable against any fixture
// reader.
package descramble

import (
	"bytes"
	"crypto/cipher"
	"io"

	"golang.org/x/crypto/blowfish"

	"github.com/deezer-stream/streamproxy/internal/apperr"
	dcipher "github.com/deezer-stream/streamproxy/internal/cipher"
)

// SegmentSize is the fixed window, in bytes, over which the scrambling
// stripe is computed.
const SegmentSize = 2048

// iv is the fixed Blowfish-CBC initialisation vector used for every
// enciphered segment. It is a constant of the protocol, not per-track.
var iv = []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07}

// Reader wraps an upstream byte stream and yields its descrambled
// plaintext. Segment 0 is always clear; segment n (n > 0) is enciphered
// iff n mod 3 == 0; any final segment shorter than SegmentSize is always
// plaintext, regardless of its index.
type Reader struct {
	src    io.Reader
	key    [dcipher.KeySize]byte
	pending []byte
	ready  bytes.Buffer
	segIdx int64
	eof    bool
	rbuf   []byte
}

// NewReader constructs a descrambling Reader over src using the derived
// per-track key.
func NewReader(src io.Reader, key [dcipher.KeySize]byte) *Reader {
	return &Reader{
		src:  src,
		key:  key,
		rbuf: make([]byte, 64*1024),
	}
}

// Read implements io.Reader. It may return fewer bytes than len(p) even
// before EOF, per the io.Reader contract.
func (r *Reader) Read(p []byte) (int, error) {
	for r.ready.Len() == 0 {
		if r.eof {
			return 0, io.EOF
		}
		if err := r.fill(); err != nil {
			return 0, err
		}
	}
	return r.ready.Read(p)
}

// fill reads one chunk from the source, folds it into the pending buffer,
// and drains every complete segment it can into the ready buffer. On
// source EOF it flushes whatever tail remains as plaintext and marks the
// reader exhausted.
func (r *Reader) fill() error {
	n, err := r.src.Read(r.rbuf)
	if n > 0 {
		r.pending = append(r.pending, r.rbuf[:n]...)
		if drainErr := r.drainSegments(); drainErr != nil {
			return drainErr
		}
	}
	if err == nil {
		return nil
	}
	if err != io.EOF {
		return apperr.NewTransport("reading upstream media stream", err)
	}

	// Tail: whatever remains (possibly empty) is always plaintext.
	if len(r.pending) > 0 {
		r.ready.Write(r.pending)
		r.pending = nil
	}
	r.eof = true
	return nil
}

// drainSegments detaches and processes every complete 2048-byte segment
// currently sitting in pending, leaving any short remainder for the next
// fill or for the final tail flush.
func (r *Reader) drainSegments() error {
	for len(r.pending) >= SegmentSize {
		segment := r.pending[:SegmentSize]
		r.pending = r.pending[SegmentSize:]

		if r.segIdx > 0 && r.segIdx%3 == 0 {
			if err := descrambleSegment(segment, r.key); err != nil {
				return apperr.NewCipherFailure("descrambling segment", err)
			}
		}

		r.ready.Write(segment)
		r.segIdx++
	}
	return nil
}

// descrambleSegment decrypts a full 2048-byte segment in place with a
// freshly initialised Blowfish-CBC state. Segments are independent: a
// failure on one never affects cipher state for the next.
func descrambleSegment(segment []byte, key [dcipher.KeySize]byte) error {
	block, err := blowfish.NewCipher(key[:])
	if err != nil {
		return err
	}
	mode := cipher.NewCBCDecrypter(block, iv)
	mode.CryptBlocks(segment, segment)
	return nil
}
