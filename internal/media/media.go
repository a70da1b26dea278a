// Package media stores user uploaded images (avatars and category icons)
// on the local filesystem.
package media

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

const (
	Avatars       = "avatars"
	CategoryIcons = "category_icons"

	// Side is the bounding box uploads are fitted into.
	Side = 256

	defaultName = "default.png"
)

var ErrNotImage = errors.New("uploaded file is not a supported image")

type Store struct {
	root string
}

func New(root string) *Store {
	return &Store{root: root}
}

func (s *Store) Root() string { return s.root }

// DefaultRef is the asset shown when an entity has no image of its own.
func DefaultRef(kind string) string {
	return path.Join(kind, defaultName)
}

// URL resolves a stored reference to its public path.
func URL(ref, kind string) string {
	if ref == "" {
		ref = DefaultRef(kind)
	}
	return "/media/" + ref
}

// EnsureDefaults writes the default placeholder images if they are missing.
func (s *Store) EnsureDefaults() error {
	defaults := map[string]color.NRGBA{
		Avatars:       {R: 0x9e, G: 0xa7, B: 0xb3, A: 0xff},
		CategoryIcons: {R: 0x4a, G: 0x6f, B: 0xa5, A: 0xff},
	}
	for kind, c := range defaults {
		dst := filepath.Join(s.root, kind, defaultName)
		if _, err := os.Stat(dst); err == nil {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return err
		}
		if err := imaging.Save(imaging.New(Side, Side, c), dst); err != nil {
			return fmt.Errorf("write %s: %w", dst, err)
		}
	}
	return nil
}

// Save decodes an uploaded image, fits it into Side x Side and stores it as
// PNG under kind. It returns the reference to persist on the entity.
func (s *Store) Save(kind string, r io.Reader) (string, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return "", ErrNotImage
	}
	img = fit(img)

	dir := filepath.Join(s.root, kind)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	name := uuid.New().String() + ".png"
	if err := imaging.Save(img, filepath.Join(dir, name)); err != nil {
		return "", fmt.Errorf("save %s image: %w", kind, err)
	}
	return path.Join(kind, name), nil
}

func fit(img image.Image) image.Image {
	b := img.Bounds()
	if b.Dx() <= Side && b.Dy() <= Side {
		return img
	}
	return imaging.Fit(img, Side, Side, imaging.Lanczos)
}

// Remove deletes a previously saved image. Default assets and references
// outside the media root are left alone.
func (s *Store) Remove(ref string) error {
	if ref == "" || path.Base(ref) == defaultName || strings.Contains(ref, "..") {
		return nil
	}
	err := os.Remove(filepath.Join(s.root, filepath.FromSlash(ref)))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
