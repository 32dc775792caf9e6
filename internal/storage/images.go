package storage

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"lumen/internal/domain"
	"lumen/internal/domain/repositories"
)

const jpegQuality = 90

// FileImageStore implements the ImageStore interface on the local filesystem.
// References are bare file names inside the app-private image directory, so
// they stay stable across data-dir relocations. No deduplication and no quota
// management.
type FileImageStore struct {
	dir        string
	galleryDir string
	logger     *slog.Logger
}

// NewFileImageStore creates the store, ensuring both directories exist.
func NewFileImageStore(dir, galleryDir string, logger *slog.Logger) (*FileImageStore, error) {
	for _, d := range []string{dir, galleryDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, fmt.Errorf("create image directory %s: %w", d, err)
		}
	}
	return &FileImageStore{dir: dir, galleryDir: galleryDir, logger: logger}, nil
}

// Save writes the image as JPEG into the app-private directory and returns
// its reference.
func (s *FileImageStore) Save(ctx context.Context, img image.Image) (string, error) {
	ref := fmt.Sprintf("IMG_%s.jpg", uuid.New().String())
	path := filepath.Join(s.dir, ref)

	if err := imaging.Save(img, path, imaging.JPEGQuality(jpegQuality)); err != nil {
		// A half-written file must not become resolvable later.
		os.Remove(path)
		return "", fmt.Errorf("save image: %w", err)
	}

	return ref, nil
}

// Export copies the referenced image into the shared gallery directory.
func (s *FileImageStore) Export(ctx context.Context, ref string) (string, error) {
	src, err := os.Open(s.path(ref))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("image %s: %w", ref, domain.ErrNotFound)
		}
		return "", fmt.Errorf("open image: %w", err)
	}
	defer src.Close()

	target := filepath.Join(s.galleryDir, ref)
	dst, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("create gallery copy: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(target)
		return "", fmt.Errorf("copy image to gallery: %w", err)
	}

	return target, nil
}

// Load resolves a reference back to the decoded image.
func (s *FileImageStore) Load(ctx context.Context, ref string) (image.Image, error) {
	img, err := imaging.Open(s.path(ref))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("image %s: %w", ref, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("load image %s: %w", ref, err)
	}
	return img, nil
}

// Delete removes the referenced files, tolerating already-missing ones.
func (s *FileImageStore) Delete(ctx context.Context, refs ...string) error {
	var errs []error
	for _, ref := range refs {
		err := os.Remove(s.path(ref))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("delete image %s: %w", ref, err))
		}
	}
	return errors.Join(errs...)
}

// path confines a reference to the image directory.
func (s *FileImageStore) path(ref string) string {
	return filepath.Join(s.dir, filepath.Base(ref))
}

var _ repositories.ImageStore = (*FileImageStore)(nil)
