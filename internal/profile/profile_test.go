package profile

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"strings"
	"testing"

	"minilink/internal/notifications"
	"minilink/internal/session"
	"minilink/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, maxBytes int64) (*Store, storage.Store) {
	t.Helper()
	backing, err := storage.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = backing.Close() })
	return New(backing, maxBytes, nil), backing
}

func gradientPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// #nosec G115: modulo 256 is safe for uint8
			img.SetRGBA(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	buf := bytes.NewBuffer(nil)
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func storedSize(t *testing.T, url string) (int, int) {
	t.Helper()
	data, mediaType, err := DecodeDataURL(url)
	require.NoError(t, err)
	assert.Equal(t, "image/webp", mediaType)
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "webp", format)
	return cfg.Width, cfg.Height
}

func TestStore_LoadAbsent(t *testing.T) {
	s, _ := newStore(t, 0)

	m, ok, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, m)
}

func TestStore_SaveLoad(t *testing.T) {
	backing, err := storage.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = backing.Close() })

	bus := notifications.NewBus(nil)
	var events int
	bus.Subscribe(notifications.TopicProfile, func(context.Context, notifications.Event) { events++ })
	s := New(backing, 0, bus)
	ctx := context.Background()

	in := Metadata{Name: "Ada", Surname: "Lovelace", Phone: "123", Description: "engines"}
	require.NoError(t, s.Save(ctx, in))

	m, ok, err := s.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, in, *m)
	assert.Equal(t, 1, events)
}

func TestStore_CorruptRecordReadsAbsent(t *testing.T) {
	s, backing := newStore(t, 0)
	ctx := context.Background()
	require.NoError(t, backing.Set(ctx, storage.KeyProfileMetadata, "{"))

	_, ok, err := s.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_CurrentFallsBackToSession(t *testing.T) {
	s, _ := newStore(t, 0)
	ctx := context.Background()
	st := &session.State{Name: "Ada", Email: "ada@example.com"}

	m, err := s.Current(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, Metadata{Name: "Ada", Email: "ada@example.com"}, m)

	m, err = s.Current(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, Metadata{}, m)
}

func TestAttachImage_ScalesToKindBounds(t *testing.T) {
	s, _ := newStore(t, 0)
	ctx := context.Background()
	st := &session.State{Name: "Ada"}

	m, err := s.AttachImage(ctx, ImageProfile, gradientPNG(t, 1024, 768), st)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(m.ProfileImage, "data:image/webp;base64,"))
	assert.Equal(t, "Ada", m.Name)
	w, h := storedSize(t, m.ProfileImage)
	assert.Equal(t, 512, w)
	assert.Equal(t, 384, h)

	m, err = s.AttachImage(ctx, ImageCover, gradientPNG(t, 3000, 500), st)
	require.NoError(t, err)
	w, h = storedSize(t, m.CoverImage)
	assert.Equal(t, 1500, w)
	assert.Equal(t, 250, h)
	assert.NotEmpty(t, m.ProfileImage)

	stored, ok, err := s.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, m, *stored)
}

func TestAttachImage_SmallImageKeepsSize(t *testing.T) {
	s, _ := newStore(t, 0)

	url, err := s.EncodeImage(ImageProfile, gradientPNG(t, 40, 20))
	require.NoError(t, err)
	w, h := storedSize(t, url)
	assert.Equal(t, 40, w)
	assert.Equal(t, 20, h)
}

func TestAttachImage_Rejections(t *testing.T) {
	s, backing := newStore(t, 64)
	ctx := context.Background()

	tests := []struct {
		name string
		blob []byte
		want error
	}{
		{"empty", nil, ErrInvalidImage},
		{"not an image", []byte("hello, this is plain text"), ErrInvalidImage},
		{"truncated png", gradientPNG(t, 8, 8)[:40], ErrInvalidImage},
		{"too large", gradientPNG(t, 64, 64), ErrImageTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.AttachImage(ctx, ImageProfile, tt.blob, nil)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, ok, err := backing.Get(ctx, storage.KeyProfileMetadata)
	require.NoError(t, err)
	assert.False(t, ok)
}

// withDeclaredSize rewrites the header of a PNG or GIF so it claims w×h pixels.
func withDeclaredSize(t *testing.T, blob []byte, w, h int) []byte {
	t.Helper()
	out := bytes.Clone(blob)
	switch {
	case bytes.HasPrefix(out, []byte("GIF8")):
		// #nosec G115: test sizes fit in uint16
		binary.LittleEndian.PutUint16(out[6:8], uint16(w))
		binary.LittleEndian.PutUint16(out[8:10], uint16(h))
	case bytes.HasPrefix(out, []byte("\x89PNG")):
		// IHDR data starts at 16; its CRC covers the chunk type and data.
		// #nosec G115: test sizes are positive
		binary.BigEndian.PutUint32(out[16:20], uint32(w))
		binary.BigEndian.PutUint32(out[20:24], uint32(h))
		binary.BigEndian.PutUint32(out[29:33], crc32.ChecksumIEEE(out[12:29]))
	default:
		t.Fatalf("unsupported format")
	}
	return out
}

func tinyGIF(t *testing.T) []byte {
	t.Helper()
	img := image.NewPaletted(image.Rect(0, 0, 1, 1), color.Palette{color.Black, color.White})
	buf := bytes.NewBuffer(nil)
	require.NoError(t, gif.Encode(buf, img, nil))
	return buf.Bytes()
}

func TestAttachImage_RejectsOversizedDimensions(t *testing.T) {
	s, backing := newStore(t, DefaultMaxImageBytes)
	ctx := context.Background()

	tests := []struct {
		name string
		blob []byte
	}{
		{"png", withDeclaredSize(t, gradientPNG(t, 2, 2), 40000, 40000)},
		{"gif", withDeclaredSize(t, tinyGIF(t), 40000, 10)},
		{"wide png", withDeclaredSize(t, gradientPNG(t, 2, 2), MaxImageDimension+1, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Less(t, len(tt.blob), 1024)
			_, err := s.AttachImage(ctx, ImageProfile, tt.blob, nil)
			assert.ErrorIs(t, err, ErrImageTooLarge)
			assert.Contains(t, err.Error(), "pixels")
		})
	}

	_, ok, err := backing.Get(ctx, storage.KeyProfileMetadata)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDecodeDataURL_Malformed(t *testing.T) {
	for _, in := range []string{"", "http://x", "data:image/png,raw", "data:image/png;base64", "data:image/png;base64,!!"} {
		_, _, err := DecodeDataURL(in)
		assert.ErrorIs(t, err, ErrInvalidImage, in)
	}
}
