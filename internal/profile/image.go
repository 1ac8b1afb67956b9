package profile

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"net/http"
	"strings"

	"minilink/internal/session"

	"github.com/chai2010/webp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

const (
	// DefaultMaxImageBytes bounds an attached image before processing.
	DefaultMaxImageBytes = 5 * 1024 * 1024
	// MaxImageDimension bounds the declared width and height before decoding.
	MaxImageDimension = 8000
	// WebPQuality is the encoder quality for stored images.
	WebPQuality = 80
)

var (
	ErrInvalidImage  = errors.New("invalid image")
	ErrImageTooLarge = errors.New("image too large")
)

// ImageKind selects which profile image is replaced.
type ImageKind int

const (
	ImageProfile ImageKind = iota
	ImageCover
)

func (k ImageKind) String() string {
	if k == ImageCover {
		return "cover"
	}
	return "profile"
}

// bounds returns the box an image of this kind is scaled down to fit.
func (k ImageKind) bounds() (w, h int) {
	if k == ImageCover {
		return 1500, 500
	}
	return 512, 512
}

// AttachImage validates blob, scales it to fit kind's bounds, re-encodes it as
// WebP and stores it in the profile record as a data URL.
func (s *Store) AttachImage(ctx context.Context, kind ImageKind, blob []byte, st *session.State) (Metadata, error) {
	url, err := s.EncodeImage(kind, blob)
	if err != nil {
		return Metadata{}, err
	}

	m, err := s.Current(ctx, st)
	if err != nil {
		return Metadata{}, err
	}
	if kind == ImageCover {
		m.CoverImage = url
	} else {
		m.ProfileImage = url
	}
	if err := s.Save(ctx, m); err != nil {
		return Metadata{}, err
	}
	return m, nil
}

// EncodeImage turns an uploaded image into the data URL that AttachImage stores.
func (s *Store) EncodeImage(kind ImageKind, blob []byte) (string, error) {
	if len(blob) == 0 {
		return "", fmt.Errorf("%w: no data", ErrInvalidImage)
	}
	if int64(len(blob)) > s.maxBytes {
		return "", fmt.Errorf("%w: %d bytes (max %d)", ErrImageTooLarge, len(blob), s.maxBytes)
	}
	if !isAllowedImageMIME(http.DetectContentType(blob)) {
		return "", fmt.Errorf("%w: unsupported type", ErrInvalidImage)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(blob))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return "", fmt.Errorf("%w: empty dimensions", ErrInvalidImage)
	}
	if cfg.Width > MaxImageDimension || cfg.Height > MaxImageDimension {
		return "", fmt.Errorf("%w: %dx%d pixels (max %dx%d)",
			ErrImageTooLarge, cfg.Width, cfg.Height, MaxImageDimension, MaxImageDimension)
	}

	decoded, _, err := image.Decode(bytes.NewReader(blob))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	w, h := kind.bounds()
	encoded, err := encodeWebP(resizeToFit(decoded, w, h), WebPQuality)
	if err != nil {
		return "", fmt.Errorf("encode %s image: %w", kind, err)
	}
	return "data:image/webp;base64," + base64.StdEncoding.EncodeToString(encoded), nil
}

// DecodeDataURL returns the bytes and media type of a stored image.
func DecodeDataURL(url string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(url, "data:")
	if !ok {
		return nil, "", fmt.Errorf("%w: not a data URL", ErrInvalidImage)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", fmt.Errorf("%w: malformed data URL", ErrInvalidImage)
	}
	mediaType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return nil, "", fmt.Errorf("%w: data URL is not base64", ErrInvalidImage)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return data, mediaType, nil
}

func resizeToFit(src image.Image, maxWidth, maxHeight int) image.Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 || (w <= maxWidth && h <= maxHeight) {
		return src
	}

	scale := min(float64(maxWidth)/float64(w), float64(maxHeight)/float64(h))
	newW := max(int(float64(w)*scale), 1)
	newH := max(int(float64(h)*scale), 1)

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)
	return dst
}

func encodeWebP(img image.Image, quality int) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := webp.Encode(buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func isAllowedImageMIME(contentType string) bool {
	switch strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0])) {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
		return true
	default:
		return false
	}
}
