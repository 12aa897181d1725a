// Package avatar validates uploaded profile images and normalizes them to a
// fixed-size PNG.
package avatar

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// Public, stable errors for callers.
var (
	ErrUnsupportedFormat = errors.New("please provide a valid file format (.jpg .jpeg .png)")
	ErrTooLarge          = errors.New("file too large")
	ErrUndecodable       = errors.New("could not read image")
)

// Policy is the upload policy.
type Policy struct {
	MaxBytes   int64
	Extensions []string
	Width      int
	Height     int
}

// DefaultPolicy accepts .jpg/.jpeg/.png uploads up to 1,000,000 bytes and
// produces 250x250 images.
func DefaultPolicy() Policy {
	return Policy{
		MaxBytes:   1_000_000,
		Extensions: []string{".jpg", ".jpeg", ".png"},
		Width:      250,
		Height:     250,
	}
}

// Normalizer applies a Policy.
type Normalizer struct {
	policy Policy
}

// NewNormalizer returns a Normalizer; zero policy fields take defaults.
func NewNormalizer(p Policy) *Normalizer {
	def := DefaultPolicy()
	if p.MaxBytes <= 0 {
		p.MaxBytes = def.MaxBytes
	}
	if len(p.Extensions) == 0 {
		p.Extensions = def.Extensions
	}
	if p.Width <= 0 || p.Height <= 0 {
		p.Width, p.Height = def.Width, def.Height
	}
	return &Normalizer{policy: p}
}

// MaxBytes is the upload size limit.
func (n *Normalizer) MaxBytes() int64 { return n.policy.MaxBytes }

// CheckFilename validates the client-supplied file name extension.
func (n *Normalizer) CheckFilename(name string) error {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(name)))
	for _, allowed := range n.policy.Extensions {
		if ext == allowed {
			return nil
		}
	}
	return ErrUnsupportedFormat
}

// Normalize reads at most MaxBytes from r, decodes a JPEG or PNG, crops it
// to the target aspect ratio around the center, resizes it and encodes PNG.
func (n *Normalizer) Normalize(r io.Reader) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(r, n.policy.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("avatar: read: %w", err)
	}
	if int64(len(raw)) > n.policy.MaxBytes {
		return nil, ErrTooLarge
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, ErrUndecodable
	}
	if format != "jpeg" && format != "png" {
		return nil, ErrUnsupportedFormat
	}

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, ErrUndecodable
	}

	out := imaging.Fill(img, n.policy.Width, n.policy.Height, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.PNG); err != nil {
		return nil, fmt.Errorf("avatar: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// IsPolicyError reports whether err is a client-side upload rejection.
func IsPolicyError(err error) bool {
	return errors.Is(err, ErrUnsupportedFormat) ||
		errors.Is(err, ErrTooLarge) ||
		errors.Is(err, ErrUndecodable)
}
