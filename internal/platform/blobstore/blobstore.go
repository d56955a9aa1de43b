// Package blobstore stores uploaded images (organization logos, profile
// pictures) under opaque keys. Records keep only the key; URL resolves it to
// a public address served by the media handler.
package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medipt/medipt/internal/platform/apperr"
)

var (
	ErrNotFound   = errors.New("blob not found")
	ErrInvalidKey = errors.New("invalid blob key")
)

// MaxImageSize bounds uploaded images (5 MiB).
const MaxImageSize = 5 << 20

var imageExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// Store is the storage backend contract.
type Store interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, key string) error
	// URL returns the public address of key, or "" for an empty key.
	URL(key string) string
}

// cleanKey rejects keys that could escape the storage root.
func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", ErrInvalidKey
	}
	c := path.Clean(key)
	if c == "." || c == ".." || strings.HasPrefix(c, "../") || c != key {
		return "", ErrInvalidKey
	}
	return c, nil
}

func joinURL(base, key string) string {
	if key == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/" + key
}

// MemoryStore keeps blobs in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	baseURL string
	blobs   map[string]memBlob
}

type memBlob struct {
	contentType string
	data        []byte
}

func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{baseURL: baseURL, blobs: make(map[string]memBlob)}
}

func (s *MemoryStore) Put(_ context.Context, key, contentType string, data []byte) error {
	k, err := cleanKey(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.blobs[k] = memBlob{contentType: contentType, data: append([]byte(nil), data...)}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (io.ReadCloser, string, error) {
	s.mu.RLock()
	b, ok := s.blobs[key]
	s.mu.RUnlock()
	if !ok {
		return nil, "", ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b.data)), b.contentType, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[key]; !ok {
		return ErrNotFound
	}
	delete(s.blobs, key)
	return nil
}

func (s *MemoryStore) URL(key string) string { return joinURL(s.baseURL, key) }

// Len reports the number of stored blobs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// FSStore writes blobs below a root directory.
type FSStore struct {
	root    string
	baseURL string
}

func NewFSStore(root, baseURL string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create media root: %w", err)
	}
	return &FSStore{root: root, baseURL: baseURL}, nil
}

func (s *FSStore) path(key string) (string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(k)), nil
}

func (s *FSStore) Put(_ context.Context, key, _ string, data []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

func (s *FSStore) Get(_ context.Context, key string) (io.ReadCloser, string, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, "", err
	}
	f, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}
	ct := imageExtensions[strings.ToLower(filepath.Ext(p))]
	if ct == "" {
		ct = "application/octet-stream"
	}
	return f, ct, nil
}

func (s *FSStore) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	} else if err != nil {
		return err
	}
	return nil
}

func (s *FSStore) URL(key string) string { return joinURL(s.baseURL, key) }

// Image is a validated image upload.
type Image struct {
	Ext         string
	ContentType string
	Data        []byte
}

// ReadImage reads and validates a multipart upload: jpg, jpeg or png, at most
// MaxImageSize bytes, with content that sniffs as an image.
func ReadImage(fh *multipart.FileHeader) (Image, error) {
	if fh == nil {
		return Image{}, apperr.ValidationFields(map[string]string{"image": "this field is required"})
	}
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	ct, ok := imageExtensions[ext]
	if !ok {
		return Image{}, apperr.ValidationFields(map[string]string{"image": "only jpg, jpeg and png files are allowed"})
	}
	if fh.Size > MaxImageSize {
		return Image{}, apperr.ValidationFields(map[string]string{"image": "image must not exceed 5 MB"})
	}
	f, err := fh.Open()
	if err != nil {
		return Image{}, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	return readImage(f, ext, ct)
}

func readImage(r io.Reader, ext, ct string) (Image, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxImageSize+1))
	if err != nil {
		return Image{}, fmt.Errorf("read upload: %w", err)
	}
	if len(data) > MaxImageSize {
		return Image{}, apperr.ValidationFields(map[string]string{"image": "image must not exceed 5 MB"})
	}
	if sniffed := http.DetectContentType(data); sniffed != ct {
		return Image{}, apperr.ValidationFields(map[string]string{"image": "file content is not a valid image"})
	}
	return Image{Ext: ext, ContentType: ct, Data: data}, nil
}

// ImageFromForm reads the named multipart field from an echo request.
func ImageFromForm(c echo.Context, field string) (Image, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return Image{}, apperr.ValidationFields(map[string]string{field: "this field is required"})
	}
	return ReadImage(fh)
}

// SaveImage stores img under prefix/owner/<random>.ext and returns the key.
func SaveImage(ctx context.Context, s Store, prefix string, owner uuid.UUID, img Image) (string, error) {
	key := fmt.Sprintf("%s/%s/%s%s", prefix, owner, uuid.NewString(), img.Ext)
	if err := s.Put(ctx, key, img.ContentType, img.Data); err != nil {
		return "", fmt.Errorf("store image: %w", err)
	}
	return key, nil
}

// MediaHandler serves stored blobs under /media/*.
func MediaHandler(s Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		key := c.Param("*")
		if _, err := cleanKey(key); err != nil {
			return apperr.NotFound("file")
		}
		rc, ct, err := s.Get(c.Request().Context(), key)
		if errors.Is(err, ErrNotFound) {
			return apperr.NotFound("file")
		}
		if err != nil {
			return err
		}
		defer rc.Close()
		c.Response().Header().Set("Cache-Control", "public, max-age=86400")
		return c.Stream(http.StatusOK, ct, rc)
	}
}
