package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
)

const MetadataSource = "source"

var (
	ErrUnsupportedType = errors.New("unsupported document type")
	ErrInvalidEncoding = errors.New("document is not valid UTF-8")
)

// Document is the full text of one source file.
type Document struct {
	Source   string
	Content  string
	MIMEType string
}

func (d Document) Metadata() map[string]any {
	return map[string]any{MetadataSource: d.Source}
}

type Loader struct {
	maxBytes int64
}

func NewLoader(maxBytes int64) *Loader {
	return &Loader{maxBytes: maxBytes}
}

// Load reads the whole file at path. Errors from the filesystem are wrapped,
// so errors.Is(err, os.ErrNotExist) holds for a missing file.
func (l *Loader) Load(ctx context.Context, path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open document failed: %w", err)
	}
	defer f.Close()
	return l.Read(ctx, path, f)
}

// Read loads a document from r and labels it with source.
func (l *Loader) Read(ctx context.Context, source string, r io.Reader) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.maxBytes > 0 {
		r = io.LimitReader(r, l.maxBytes+1)
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read document failed: %w", err)
	}
	if l.maxBytes > 0 && int64(len(raw)) > l.maxBytes {
		return nil, fmt.Errorf("document %s exceeds %d bytes", source, l.maxBytes)
	}

	mt := mimetype.Detect(raw)
	var text string
	switch {
	case mt.Is("application/pdf"):
		text, err = extractPDF(raw)
		if err != nil {
			return nil, fmt.Errorf("extract pdf text failed: %w", err)
		}
	case isText(mt):
		if !utf8.Valid(raw) {
			return nil, ErrInvalidEncoding
		}
		text = string(bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf")))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, mt.String())
	}

	return &Document{
		Source:   source,
		Content:  text,
		MIMEType: strings.SplitN(mt.String(), ";", 2)[0],
	}, nil
}

func isText(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}
