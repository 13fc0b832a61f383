// Package recordio reads and writes reconstruction results as a
// forward-only sequential stream: one self-delimiting gob record per
// result, decodable one at a time until a clean end-of-stream, with no
// length prefix or index. Downstream consumers count frames by decoding
// until exhaustion, so that contract is load-bearing here.
package recordio

import (
	"bufio"
	"compress/gzip"
	"encoding/gob"
	"errors"
	"fmt"
	"io"

	"github.com/tanksight/refract3d/internal/reconstruct"
)

// Header starts every stream and carries run provenance. It is the first
// gob value in the stream; every following value is a reconstruct.Result.
type Header struct {
	RunID         string
	SchemaVersion int
}

// SchemaVersion is bumped when the record layout changes incompatibly.
const SchemaVersion = 1

// Writer appends results to a stream. Not safe for concurrent use.
type Writer struct {
	enc *gob.Encoder
	gz  *gzip.Writer
}

// NewWriter starts a stream on w, writing the header immediately. With
// compress set the stream is gzip-wrapped; Close must then be called to
// flush.
func NewWriter(w io.Writer, runID string, compress bool) (*Writer, error) {
	sw := &Writer{}
	var sink io.Writer = w
	if compress {
		sw.gz = gzip.NewWriter(w)
		sink = sw.gz
	}
	sw.enc = gob.NewEncoder(sink)
	if err := sw.enc.Encode(Header{RunID: runID, SchemaVersion: SchemaVersion}); err != nil {
		return nil, fmt.Errorf("failed to write stream header: %w", err)
	}
	return sw, nil
}

// Write appends one result record.
func (w *Writer) Write(res *reconstruct.Result) error {
	if err := w.enc.Encode(res); err != nil {
		return fmt.Errorf("failed to encode result record: %w", err)
	}
	return nil
}

// Close flushes the compressed stream if one is in use.
func (w *Writer) Close() error {
	if w.gz != nil {
		return w.gz.Close()
	}
	return nil
}

// Reader decodes a stream sequentially. Not safe for concurrent use.
type Reader struct {
	dec    *gob.Decoder
	header Header
}

// gzipMagic is the two-byte gzip file signature.
var gzipMagic = []byte{0x1f, 0x8b}

// NewReader opens a stream, transparently handling gzip, and reads the
// header. Compression is detected from the two-byte gzip signature; a
// plain stream whose gob header happened to start with those bytes would
// be misread, so a future schema bump should add an explicit format byte.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err != nil {
		return nil, fmt.Errorf("stream too short: %w", err)
	}
	var src io.Reader = br
	if magic[0] == gzipMagic[0] && magic[1] == gzipMagic[1] {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("failed to open compressed stream: %w", err)
		}
		src = gz
	}
	sr := &Reader{dec: gob.NewDecoder(src)}
	if err := sr.dec.Decode(&sr.header); err != nil {
		return nil, fmt.Errorf("failed to read stream header: %w", err)
	}
	if sr.header.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("unsupported stream schema version %d", sr.header.SchemaVersion)
	}
	return sr, nil
}

// Header returns the stream header.
func (r *Reader) Header() Header { return r.header }

// Next decodes the next record. It returns io.EOF at a clean end of
// stream; any other error means the stream is truncated or corrupt.
func (r *Reader) Next() (*reconstruct.Result, error) {
	var res reconstruct.Result
	if err := r.dec.Decode(&res); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to decode result record: %w", err)
	}
	return &res, nil
}

// Count decodes records until the stream is exhausted and returns how
// many there were. This is the frame-counting contract: no random access,
// no index, just forward decodes to a detectable end.
func Count(r io.Reader) (int, error) {
	sr, err := NewReader(r)
	if err != nil {
		return 0, err
	}
	n := 0
	for {
		_, err := sr.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}
