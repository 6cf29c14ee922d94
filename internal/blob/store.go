// Package blob stores inline rich-text images as content-addressed files.
//
// Every image is named by the SHA-256 of its decoded bytes and sharded by the
// first two hex digits, so writing the same picture twice is a no-op and a
// retried request can never leave a second copy behind.
package blob

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/net/html"

	"github.com/sumire/tracker/internal/domain"
	"github.com/sumire/tracker/internal/metrics"
)

// URLPrefix is the public path under which blobs are served.
const URLPrefix = "/uploads/images/"

var refPattern = regexp.MustCompile(regexp.QuoteMeta(URLPrefix) + `([0-9a-f]{2}/[0-9a-f]{64}\.[a-z0-9]+)`)

var allowedTypes = map[string]string{
	"image/png":     ".png",
	"image/jpeg":    ".jpg",
	"image/gif":     ".gif",
	"image/svg+xml": ".svg",
	"image/webp":    ".webp",
}

// Store writes image blobs below a root directory.
type Store struct {
	dir      string
	maxBytes int64
}

// NewStore creates the root directory if needed.
func NewStore(dir string, maxBytes int64) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir %s: %w", dir, err)
	}
	return &Store{dir: dir, maxBytes: maxBytes}, nil
}

// Dir returns the root directory.
func (s *Store) Dir() string { return s.dir }

// Put stores data and returns its public URL.
func (s *Store) Put(data []byte) (string, error) {
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return "", &domain.ValidationError{
			Field:   "image",
			Message: fmt.Sprintf("image exceeds %d bytes", s.maxBytes),
		}
	}

	mt := mimetype.Detect(data)
	ext, ok := extensionFor(mt)
	if !ok {
		return "", &domain.ValidationError{
			Field:   "image",
			Message: fmt.Sprintf("unsupported image content %s", mt.String()),
		}
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	rel := hash[:2] + "/" + hash + ext
	path := filepath.Join(s.dir, filepath.FromSlash(rel))

	// An existing blob is touched so the sweeper's grace period restarts
	// for the text about to reference it.
	now := time.Now()
	switch err := os.Chtimes(path, now, now); {
	case err == nil:
		return URLPrefix + rel, nil
	case !errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("touch blob: %w", err)
	}
	if err := writeFile(path, data); err != nil {
		return "", err
	}
	metrics.ImagesStored.Inc()
	return URLPrefix + rel, nil
}

func extensionFor(mt *mimetype.MIME) (string, bool) {
	for m := mt; m != nil; m = m.Parent() {
		if ext, ok := allowedTypes[m.String()]; ok {
			return ext, true
		}
	}
	return "", false
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create shard dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp blob: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("publish blob: %w", err)
	}
	return nil
}

// Embed replaces the src of every img whose source is an inline base64
// image with a stored blob URL. Everything else in html is kept byte for
// byte.
func (s *Store) Embed(text string) (string, error) {
	if !strings.Contains(text, "data:") {
		return text, nil
	}

	var out bytes.Buffer
	out.Grow(len(text))
	z := html.NewTokenizer(strings.NewReader(text))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if errors.Is(z.Err(), io.EOF) {
				return out.String(), nil
			}
			return "", fmt.Errorf("tokenize rich text: %w", z.Err())
		}
		raw := append([]byte(nil), z.Raw()...)
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			out.Write(raw)
			continue
		}

		tok := z.Token()
		if tok.Data != "img" {
			out.Write(raw)
			continue
		}
		rewritten := false
		for i, attr := range tok.Attr {
			if attr.Namespace != "" || attr.Key != "src" {
				continue
			}
			data, ok, err := inlineImage(attr.Val)
			if err != nil {
				return "", err
			}
			if !ok {
				continue
			}
			url, err := s.Put(data)
			if err != nil {
				return "", err
			}
			tok.Attr[i].Val = url
			rewritten = true
		}
		if rewritten {
			out.WriteString(tok.String())
		} else {
			out.Write(raw)
		}
	}
}

// inlineImage decodes a data:image/...;base64 URI. ok is false for any other
// source.
func inlineImage(src string) (data []byte, ok bool, err error) {
	src = strings.TrimSpace(src)
	if len(src) < len("data:image/") || !strings.EqualFold(src[:len("data:image/")], "data:image/") {
		return nil, false, nil
	}
	meta, payload, found := strings.Cut(src[len("data:"):], ",")
	if !found || !strings.HasSuffix(strings.ToLower(meta), ";base64") {
		return nil, false, nil
	}
	data, err = decodeBase64(payload)
	if err != nil {
		return nil, false, &domain.ValidationError{Field: "image", Message: "malformed base64 image data"}
	}
	return data, true, nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, s)
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
	}
	return data, err
}

// References collects the blob names (shard/file) referenced by texts.
func References(texts ...string) map[string]bool {
	refs := make(map[string]bool)
	for _, t := range texts {
		for _, m := range refPattern.FindAllStringSubmatch(t, -1) {
			refs[m[1]] = true
		}
	}
	return refs
}

// Handler serves stored blobs. Directory listings are not exposed.
func (s *Store) Handler() http.Handler {
	files := http.FileServer(noDirFS{http.Dir(s.dir)})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'")
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		files.ServeHTTP(w, r)
	})
}

type noDirFS struct {
	fs http.FileSystem
}

func (n noDirFS) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, fs.ErrNotExist
	}
	return f, nil
}
