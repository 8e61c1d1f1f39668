package play

import (
	"bytes"
	"context"
	"io"

	"github.com/deezer-stream/streamproxy/internal/metrics"
)

// teeReader hands each segment from a stream.Open pipeline to the
// caller via Read while accumulating the same bytes into an in-memory
// buffer. On clean EOF (no upstream error, caller read to completion)
// it issues one Put of the full buffer; on any error, or if the caller
// closes early, the buffer is dropped and no object is written.
//
// This is not io.MultiWriter: a disconnected client must not prevent
// the upload sink from being considered, and an upload sink has no
// bearing on what the client already received — the two sinks fail
// independently.
type teeReader struct {
	segments <-chan []byte
	errs     <-chan error

	objects ObjectStore
	key     string

	pending []byte // unread remainder of the current segment
	buf     bytes.Buffer
	done    bool
	upErr   error
}

func newTeeReader(segments <-chan []byte, errs <-chan error, objects ObjectStore, key string) *teeReader {
	return &teeReader{segments: segments, errs: errs, objects: objects, key: key}
}

func (t *teeReader) Read(p []byte) (int, error) {
	for len(t.pending) == 0 && !t.done {
		seg, ok := <-t.segments
		if !ok {
			t.done = true
			t.upErr = <-t.errs
			break
		}
		t.pending = seg
		t.buf.Write(seg)
	}

	if len(t.pending) == 0 {
		if t.upErr != nil {
			return 0, t.upErr
		}
		t.finalize()
		return 0, io.EOF
	}

	n := copy(p, t.pending)
	t.pending = t.pending[n:]
	return n, nil
}

// Close is called by callers that stop reading before EOF (a
// disconnected client). No further Put is attempted; the accumulated
// buffer is simply discarded.
func (t *teeReader) Close() error {
	return nil
}

// finalize fires the single PUT once the producer has reached a clean
// EOF with no upstream error. It runs with its own background context:
// the client's response body has already been fully delivered by this
// point, so the client's cancellation signal is no longer relevant to
// whether the write-back succeeds.
func (t *teeReader) finalize() {
	if t.upErr != nil {
		return
	}
	payload := append([]byte(nil), t.buf.Bytes()...)
	go func() {
		if err := t.objects.Put(context.Background(), t.key, bytes.NewReader(payload), int64(len(payload))); err != nil {
			metrics.RecordObjectStorePutFailure()
		}
	}()
}
