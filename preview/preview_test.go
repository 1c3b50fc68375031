package preview

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

func near(t *testing.T, want color.RGBA, got color.Color) {
	t.Helper()
	r, g, b, _ := got.RGBA()
	d := func(a uint8, b uint32) int {
		v := int(a) - int(b>>8)
		if v < 0 {
			return -v
		}
		return v
	}
	assert.LessOrEqual(t, d(want.R, r), 24, "red")
	assert.LessOrEqual(t, d(want.G, g), 24, "green")
	assert.LessOrEqual(t, d(want.B, b), 24, "blue")
}

func TestWatchPage(t *testing.T) {
	s := New(Config{Title: "consumer <1>"})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/watch", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `<img src="/mjpeg"`)
	assert.Contains(t, rec.Body.String(), "<title>consumer &lt;1&gt;</title>")
}

func TestEncodeWithoutFrame(t *testing.T) {
	b, ok, err := New(Config{}).encode()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, b)
}

func TestUpdateCopiesFrame(t *testing.T) {
	s := New(Config{})
	img := solid(8, 8, color.RGBA{R: 255, A: 255})
	s.Update(img, "a")
	img.SetRGBA(0, 0, color.RGBA{B: 255, A: 255})
	assert.Equal(t, color.RGBA{R: 255, A: 255}, s.frame.RGBAAt(0, 0))

	s.Update(solid(4, 2, color.RGBA{G: 255, A: 255}), "b")
	assert.Equal(t, image.Rect(0, 0, 4, 2), s.frame.Bounds())
	assert.Equal(t, "b", s.status)
	assert.Len(t, s.wake, 1)
}

func TestEncodeScales(t *testing.T) {
	s := New(Config{Width: 200, Quality: 90})
	red := color.RGBA{R: 250, G: 10, B: 10, A: 255}
	s.Update(solid(100, 100, red), "producer frame 1")

	b, ok, err := s.encode()
	require.NoError(t, err)
	require.True(t, ok)
	img, err := jpeg.Decode(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 200, 200), img.Bounds())
	near(t, red, img.At(150, 150))

	s.Update(solid(100, 100, red), "")
	plain, _, err := s.encode()
	require.NoError(t, err)
	assert.NotEqual(t, plain, b, "status label not drawn")
}

func TestEncodeKeepsSize(t *testing.T) {
	s := New(Config{})
	blue := color.RGBA{B: 240, A: 255}
	s.Update(solid(64, 32, blue), "")
	b, ok, err := s.encode()
	require.NoError(t, err)
	require.True(t, ok)
	img, err := jpeg.Decode(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 32), img.Bounds())
	near(t, blue, img.At(2, 2))
}

func TestServe(t *testing.T) {
	s := New(Config{FPS: 100})
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- s.Serve(ctx, l) }()

	green := color.RGBA{G: 230, A: 255}
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		frame := solid(32, 32, green)
		for {
			select {
			case <-stop:
				return
			case <-time.After(10 * time.Millisecond):
				s.Update(frame, "")
			}
		}
	}()

	resp, err := http.Get("http://" + l.Addr().String() + "/mjpeg")
	require.NoError(t, err)
	defer resp.Body.Close()
	mt, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/x-mixed-replace", mt)

	part, err := multipart.NewReader(resp.Body, params["boundary"]).NextPart()
	require.NoError(t, err)
	img, err := jpeg.Decode(part)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 32, 32), img.Bounds())
	near(t, green, img.At(16, 16))
	resp.Body.Close()

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
