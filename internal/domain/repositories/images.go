package repositories

import (
	"context"
	"image"
)

// ImageStore persists in-memory images and resolves them back by reference.
// References are opaque stable strings; callers never interpret them.
type ImageStore interface {
	// Save writes the image to app-private storage and returns its reference.
	Save(ctx context.Context, img image.Image) (string, error)

	// Export writes a copy of the referenced image into the shared gallery
	// directory and returns the exported path.
	Export(ctx context.Context, ref string) (string, error)

	// Load resolves a reference back to the decoded image.
	// Returns domain.ErrNotFound if the reference no longer resolves.
	Load(ctx context.Context, ref string) (image.Image, error)

	// Delete removes the referenced files, tolerating already-missing ones.
	Delete(ctx context.Context, refs ...string) error
}
