// Package storage writes complaint images to the local upload directory.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"cityzen/models"
)

// LocalImageStore saves images under BasePath and serves them from URLPrefix.
type LocalImageStore struct {
	basePath  string
	urlPrefix string
}

// NewLocalImageStore creates the upload directory if needed.
func NewLocalImageStore(basePath, urlPrefix string) (*LocalImageStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory %s: %w", basePath, err)
	}
	return &LocalImageStore{basePath: basePath, urlPrefix: strings.TrimRight(urlPrefix, "/")}, nil
}

// Save writes img under a random name and returns its public URL.
func (s *LocalImageStore) Save(ctx context.Context, img models.ImageUpload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := uuid.NewString() + extension(img)
	if err := os.WriteFile(filepath.Join(s.basePath, name), img.Data, 0644); err != nil {
		return "", fmt.Errorf("failed to write image %s: %w", name, err)
	}
	return path.Join(s.urlPrefix, name), nil
}

// Remove deletes the file behind url. A missing file is not an error.
func (s *LocalImageStore) Remove(ctx context.Context, url string) error {
	name := path.Base(url)
	if name == "." || name == "/" {
		return nil
	}
	err := os.Remove(filepath.Join(s.basePath, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove image %s: %w", name, err)
	}
	return nil
}

// Dir is the directory files are written to, for mounting a file server.
func (s *LocalImageStore) Dir() string {
	return s.basePath
}

func extension(img models.ImageUpload) string {
	switch strings.ToLower(strings.TrimSpace(strings.Split(img.ContentType, ";")[0])) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	}
	if ext := strings.ToLower(filepath.Ext(img.FileName)); ext != "" && len(ext) <= 5 {
		return ext
	}
	return ".img"
}
