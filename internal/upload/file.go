package upload

import (
	"bytes"
	"io"
	"io/fs"
	"math"
	"path/filepath"
	"strings"
)

// DefaultExtension is used when a file name carries no usable extension.
const DefaultExtension = "mp3"

// File is anything with a name that can be read once. *os.File qualifies.
// The size is taken from a Size() int64 or Stat() method when available.
type File interface {
	io.Reader
	Name() string
}

// Blob is an in-memory File.
type Blob struct {
	name string
	*bytes.Reader
}

func NewBlob(name string, data []byte) *Blob {
	return &Blob{name: name, Reader: bytes.NewReader(data)}
}

func (b *Blob) Name() string { return b.name }

// ExtensionHint returns the lower-cased text after the last dot of the base
// name, or DefaultExtension when there is none.
func ExtensionHint(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	i := strings.LastIndex(base, ".")
	if i < 0 {
		return DefaultExtension
	}
	ext := strings.ToLower(base[i+1:])
	if ext == "" {
		return DefaultExtension
	}
	return ext
}

// sizeOf reports the byte length of f, or -1 when it cannot be known up front.
func sizeOf(f File) int64 {
	switch v := f.(type) {
	case interface{ Size() int64 }:
		return v.Size()
	case interface{ Stat() (fs.FileInfo, error) }:
		info, err := v.Stat()
		if err != nil || !info.Mode().IsRegular() {
			return -1
		}
		return info.Size()
	default:
		return -1
	}
}

// progressReader reports round(loaded/total*100) as bytes are consumed,
// once per distinct percentage.
type progressReader struct {
	r        io.Reader
	total    int64
	loaded   int64
	last     int
	progress func(pct int)
}

func newProgressReader(r io.Reader, total int64, progress func(int)) io.Reader {
	if progress == nil || total <= 0 {
		return r
	}
	return &progressReader{r: r, total: total, last: -1, progress: progress}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.loaded += int64(n)
		pct := int(math.Round(float64(p.loaded) / float64(p.total) * 100))
		if pct > 100 {
			pct = 100
		}
		if pct != p.last {
			p.last = pct
			p.progress(pct)
		}
	}
	return n, err
}

// Stream is a File over an arbitrary reader, such as a request body. size
// may be -1 when unknown.
type Stream struct {
	io.Reader
	name string
	size int64
}

func NewStream(name string, r io.Reader, size int64) *Stream {
	return &Stream{Reader: r, name: name, size: size}
}

func (s *Stream) Name() string { return s.name }

func (s *Stream) Size() int64 { return s.size }
