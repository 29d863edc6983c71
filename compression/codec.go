package compression

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"sync"

	"github.com/golang/snappy"
)

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

var gzipWriters = sync.Pool{
	New: func() interface{} { return gzip.NewWriter(nil) },
}

var gzipReaders sync.Pool

type pooledGzipWriter struct {
	*gzip.Writer
}

func (w pooledGzipWriter) Close() error {
	defer gzipWriters.Put(w.Writer)
	return w.Writer.Close()
}

type pooledGzipReader struct {
	*gzip.Reader
}

func (r pooledGzipReader) Close() error {
	defer gzipReaders.Put(r.Reader)
	return r.Reader.Close()
}

// Compress returns a writer that compresses into w. The caller must Close
// it to flush.
func (e Encoding) Compress(w io.Writer) (io.WriteCloser, error) {
	switch e {
	case Identity:
		return nopWriteCloser{w}, nil
	case Gzip:
		gw := gzipWriters.Get().(*gzip.Writer)
		gw.Reset(w)
		return pooledGzipWriter{gw}, nil
	case Deflate:
		return zlib.NewWriter(w), nil
	case Snappy:
		return snappy.NewBufferedWriter(w), nil
	}
	return nil, fmt.Errorf("compress: unknown encoding %v", e)
}

// Decompress returns a reader of the decompressed contents of r.
func (e Encoding) Decompress(r io.Reader) (io.ReadCloser, error) {
	switch e {
	case Identity:
		return io.NopCloser(r), nil
	case Gzip:
		if gr, ok := gzipReaders.Get().(*gzip.Reader); ok {
			if err := gr.Reset(r); err != nil {
				gzipReaders.Put(gr)
				return nil, err
			}
			return pooledGzipReader{gr}, nil
		}
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		return pooledGzipReader{gr}, nil
	case Deflate:
		return zlib.NewReader(r)
	case Snappy:
		return io.NopCloser(snappy.NewReader(r)), nil
	}
	return nil, fmt.Errorf("decompress: unknown encoding %v", e)
}

// CompressBytes compresses b in one shot.
func (e Encoding) CompressBytes(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := e.Compress(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(b); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecompressBytes decompresses b, reading at most limit bytes of output
// when limit is positive. ok is false if the output exceeded the limit.
func (e Encoding) DecompressBytes(b []byte, limit int) (out []byte, ok bool, err error) {
	r, err := e.Decompress(bytes.NewReader(b))
	if err != nil {
		return nil, true, err
	}
	defer r.Close()
	var src io.Reader = r
	if limit > 0 {
		src = io.LimitReader(r, int64(limit)+1)
	}
	out, err = io.ReadAll(src)
	if err != nil {
		return nil, true, err
	}
	if limit > 0 && len(out) > limit {
		return nil, false, nil
	}
	return out, true, nil
}
