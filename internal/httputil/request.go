package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"net/http"

	"github.com/disintegration/imaging"
)

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 1 << 20

// maxImageBody bounds multipart image uploads.
const maxImageBody = 20 << 20

// ParseJSON decodes JSON from the request body into the given destination,
// limiting the body size.
func ParseJSON(w http.ResponseWriter, r *http.Request, dest interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)

	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// ParseImages decodes every file in the multipart "image" field. At least one
// file is required.
func ParseImages(w http.ResponseWriter, r *http.Request) ([]image.Image, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageBody)

	if err := r.ParseMultipartForm(maxImageBody); err != nil {
		return nil, fmt.Errorf("invalid multipart form: %w", err)
	}
	if r.MultipartForm == nil || len(r.MultipartForm.File["image"]) == 0 {
		return nil, errors.New("missing image file field")
	}

	var imgs []image.Image
	for _, header := range r.MultipartForm.File["image"] {
		file, err := header.Open()
		if err != nil {
			return nil, fmt.Errorf("open uploaded file: %w", err)
		}
		img, err := imaging.Decode(file, imaging.AutoOrientation(true))
		file.Close()
		if err != nil {
			return nil, fmt.Errorf("decode image %q: %w", header.Filename, err)
		}
		imgs = append(imgs, img)
	}
	return imgs, nil
}
