// Package preview serves the shared texture as an MJPEG stream.
//
// GET /watch is a page showing the stream, GET /mjpeg the stream itself.
package preview

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"image"
	"image/draw"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/mattn/go-mjpeg"
	"github.com/nfnt/resize"

	"github.com/kirides/texshare/interop"
	"github.com/kirides/texshare/overlay"
)

type Config struct {
	Addr string
	// Width scales frames to this width keeping the aspect ratio, 0 keeps
	// the texture size.
	Width   uint
	Quality int
	FPS     int
	Title   string
}

// Server encodes the latest frame it was given and pushes it to every
// connected client. Frames are encoded on the server's goroutine, never on
// the caller of Update.
type Server struct {
	cfg    Config
	stream *mjpeg.Stream
	opts   encoderOptions
	buf    *bufferFlusher
	wake   chan struct{}

	mu     sync.Mutex
	frame  *image.RGBA
	status string

	work *image.RGBA
}

func New(cfg Config) *Server {
	if cfg.Quality <= 0 {
		cfg.Quality = 75
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 15
	}
	return &Server{
		cfg:    cfg,
		stream: mjpeg.NewStreamWithInterval(time.Second / time.Duration(cfg.FPS)),
		opts:   jpegQuality(cfg.Quality),
		buf:    &bufferFlusher{},
		wake:   make(chan struct{}, 1),
	}
}

// Update copies img as the next frame. It never blocks on encoding.
func (s *Server) Update(img *image.RGBA, status string) {
	s.mu.Lock()
	if s.frame == nil || s.frame.Bounds() != img.Bounds() {
		s.frame = image.NewRGBA(img.Bounds())
	}
	copy(s.frame.Pix, img.Pix)
	s.status = status
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

var watchPage = template.Must(template.New("watch").Parse(`<head>
	<meta charset="UTF-8">
	<meta http-equiv="X-UA-Compatible" content="IE=edge">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
	<title>{{.}}</title>
</head>
<body style="margin:0">
	<img src="/mjpeg" style="max-width: 100vw; max-height: 100vh;object-fit: contain;display: block;margin: 0 auto;" />
</body>`))

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/watch", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		title := s.cfg.Title
		if title == "" {
			title = "texshare"
		}
		if err := watchPage.Execute(w, title); err != nil {
			interop.Logger().Warn("write watch page", "err", err)
		}
	})
	mux.Handle("/mjpeg", s.stream)
	return mux
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	l, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

// Serve serves on l until ctx is done.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{Handler: s.Handler()}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(l) }()
	interop.Logger().Info("preview listening", "addr", "http://"+l.Addr().String()+"/watch")

	for {
		select {
		case <-ctx.Done():
			s.stream.Close()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				srv.Close()
			}
			if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case err := <-errc:
			return err
		case <-s.wake:
		}
		b, ok, err := s.encode()
		if err != nil {
			interop.Logger().Warn("encode preview", "err", err)
			continue
		}
		if ok {
			if err := s.stream.Update(b); err != nil {
				interop.Logger().Warn("update stream", "err", err)
			}
		}
	}
}

// encode renders the latest frame with its status line to a JPEG. It
// reports false when no frame arrived yet.
func (s *Server) encode() ([]byte, bool, error) {
	s.mu.Lock()
	if s.frame == nil {
		s.mu.Unlock()
		return nil, false, nil
	}
	if s.work == nil || s.work.Bounds() != s.frame.Bounds() {
		s.work = image.NewRGBA(s.frame.Bounds())
	}
	copy(s.work.Pix, s.frame.Pix)
	status := s.status
	s.mu.Unlock()

	img := s.work
	if s.cfg.Width > 0 && uint(img.Bounds().Dx()) != s.cfg.Width {
		img = toRGBA(resize.Resize(s.cfg.Width, 0, img, resize.Bilinear))
	}
	if status != "" {
		if _, err := overlay.Label(img, status, 4, 4, 14, 3); err != nil {
			return nil, false, err
		}
	}
	s.buf.Reset()
	if err := encodeJpeg(s.buf, img, s.opts); err != nil {
		return nil, false, err
	}
	return bytes.Clone(s.buf.Bytes()), true, nil
}

func toRGBA(img image.Image) *image.RGBA {
	if r, ok := img.(*image.RGBA); ok {
		return r
	}
	r := image.NewRGBA(img.Bounds())
	draw.Draw(r, r.Bounds(), img, img.Bounds().Min, draw.Src)
	return r
}

// Workaround for jpeg.Encode(), which requires a Flush()
// method to not call `bufio.NewWriter`
type bufferFlusher struct {
	bytes.Buffer
}

func (*bufferFlusher) Flush() error { return nil }
