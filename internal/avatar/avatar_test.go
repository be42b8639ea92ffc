package avatar

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	im := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			im.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, im))
	return buf.Bytes()
}

func TestThumbFetchesAndResizes(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngBytes(t, 256, 64))
	}))
	defer srv.Close()

	s := NewService(t.TempDir(), 128, 10, 10)
	ctx := context.Background()

	path, err := s.Thumb(ctx, srv.URL+"/p.png")
	require.NoError(t, err)

	im, err := imaging.Open(path)
	require.NoError(t, err)
	assert.Equal(t, 128, im.Bounds().Dx(), "wide images are downscaled to maxW")
	assert.Equal(t, int32(1), hits.Load())
}

func TestThumbCached(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write(pngBytes(t, 64, 64))
	}))
	defer srv.Close()

	s := NewService(t.TempDir(), 128, 10, 10)
	ctx := context.Background()

	first, err := s.Thumb(ctx, srv.URL+"/p.png")
	require.NoError(t, err)
	second, err := s.Thumb(ctx, srv.URL+"/p.png")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), hits.Load(), "second request must hit the disk cache")
}

func TestThumbSmallImageKeptAsIs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(pngBytes(t, 64, 64))
	}))
	defer srv.Close()

	s := NewService(t.TempDir(), 128, 10, 10)

	path, err := s.Thumb(context.Background(), srv.URL+"/p.png")
	require.NoError(t, err)

	im, err := imaging.Open(path)
	require.NoError(t, err)
	assert.Equal(t, 64, im.Bounds().Dx())
}

func TestThumbUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	s := NewService(t.TempDir(), 128, 10, 10)

	_, err := s.Thumb(context.Background(), srv.URL+"/missing.png")
	assert.Error(t, err)
}

func TestThumbNotAnImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not an image</html>"))
	}))
	defer srv.Close()

	s := NewService(t.TempDir(), 128, 10, 10)

	_, err := s.Thumb(context.Background(), srv.URL+"/p.png")
	assert.Error(t, err)
}
