// Package config loads the TOML configuration shared by the producer and
// consumer commands.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/kirides/texshare/interop"
)

type Config struct {
	Log      Log      `toml:"log"`
	Channel  Channel  `toml:"channel"`
	Texture  Texture  `toml:"texture"`
	Window   Window   `toml:"window"`
	Producer Producer `toml:"producer"`
	Consumer Consumer `toml:"consumer"`
	Preview  Preview  `toml:"preview"`
}

type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type Channel struct {
	Name     string   `toml:"name"`
	Interval Duration `toml:"interval"`
}

type Texture struct {
	Width   int    `toml:"width"`
	Height  int    `toml:"height"`
	Format  string `toml:"format"`
	Mipmaps bool   `toml:"mipmaps"`
	Fill    Color  `toml:"fill"`
}

type Window struct {
	Title        string `toml:"title"`
	Width        int    `toml:"width"`
	Height       int    `toml:"height"`
	Display      int    `toml:"display"`
	X            int    `toml:"x"`
	Y            int    `toml:"y"`
	Resizable    bool   `toml:"resizable"`
	Borderless   bool   `toml:"borderless"`
	GLMajor      int    `toml:"gl_major"`
	GLMinor      int    `toml:"gl_minor"`
	SwapInterval int    `toml:"swap_interval"`
}

type Producer struct {
	Clear     Color `toml:"clear"`
	Pulse     bool  `toml:"pulse"`
	Exclusive bool  `toml:"exclusive"`
	FPS       int   `toml:"fps"`
}

type Consumer struct {
	ImportAttempts int      `toml:"import_attempts"`
	RetryDelay     Duration `toml:"retry_delay"`
	// SampleX and SampleY select the logged texel, negative means the
	// center of the texture.
	SampleX int `toml:"sample_x"`
	SampleY int `toml:"sample_y"`
	FPS     int `toml:"fps"`
}

type Preview struct {
	Enabled bool     `toml:"enabled"`
	Addr    string   `toml:"addr"`
	FPS     int      `toml:"fps"`
	Quality int      `toml:"quality"`
	Width   uint     `toml:"width"`
	Every   Duration `toml:"every"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Log: Log{Level: "info", Format: "text"},
		Channel: Channel{
			Name:     "d3dshare",
			Interval: Duration(time.Second),
		},
		Texture: Texture{
			Width:  1000,
			Height: 1000,
			Format: interop.FormatRGBA8.String(),
			Fill:   Color{G: 0xff, A: 0xff},
		},
		Window: Window{
			Width:   1000,
			Height:  1000,
			Display: -1,
			X:       200,
			Y:       100,
			GLMajor: 4,
			GLMinor: 6,
		},
		Producer: Producer{
			Clear: Color{R: 0x33, G: 0x4c, B: 0x66, A: 0xff},
			Pulse: true,
			FPS:   60,
		},
		Consumer: Consumer{
			ImportAttempts: 1,
			RetryDelay:     Duration(500 * time.Millisecond),
			SampleX:        -1,
			SampleY:        -1,
			FPS:            60,
		},
		Preview: Preview{
			Addr:    "127.0.0.1:8023",
			FPS:     15,
			Quality: 75,
			Width:   640,
			Every:   Duration(100 * time.Millisecond),
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	cfg, err := Decode(f)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Decode reads a TOML document over the defaults. Unknown keys are an
// error.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	dec := toml.NewDecoder(r).DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return Config{}, fmt.Errorf("config: %s", strict.String())
		}
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Parse is Decode on a byte slice.
func Parse(data []byte) (Config, error) {
	return Decode(bytes.NewReader(data))
}

func (c Config) Validate() error {
	var errs []error
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: %q is neither text nor json", c.Log.Format))
	}
	if c.Channel.Name == "" {
		errs = append(errs, errors.New("channel.name: empty"))
	}
	if c.Channel.Interval <= 0 {
		errs = append(errs, errors.New("channel.interval: must be positive"))
	}
	if c.Texture.Width < 1 || c.Texture.Width > interop.MaxTextureDimension ||
		c.Texture.Height < 1 || c.Texture.Height > interop.MaxTextureDimension {
		errs = append(errs, fmt.Errorf("texture: size %dx%d outside 1..%d",
			c.Texture.Width, c.Texture.Height, interop.MaxTextureDimension))
	}
	if _, err := interop.ParsePixelFormat(c.Texture.Format); err != nil {
		errs = append(errs, fmt.Errorf("texture.format: %w", err))
	}
	if c.Window.Width < 1 || c.Window.Height < 1 {
		errs = append(errs, fmt.Errorf("window: size %dx%d", c.Window.Width, c.Window.Height))
	}
	if c.Producer.FPS < 0 || c.Consumer.FPS < 0 || c.Preview.FPS < 0 {
		errs = append(errs, errors.New("fps: must not be negative"))
	}
	if c.Consumer.ImportAttempts < 0 {
		errs = append(errs, errors.New("consumer.import_attempts: must not be negative"))
	}
	if c.Preview.Quality < 1 || c.Preview.Quality > 100 {
		errs = append(errs, fmt.Errorf("preview.quality: %d outside 1..100", c.Preview.Quality))
	}
	return errors.Join(errs...)
}

// SlogLevel parses Level.
func (l Log) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}

func (t Texture) Desc() (interop.TextureDesc, error) {
	f, err := interop.ParsePixelFormat(t.Format)
	if err != nil {
		return interop.TextureDesc{}, err
	}
	fill := color.RGBA(t.Fill)
	return interop.TextureDesc{
		Width:   t.Width,
		Height:  t.Height,
		Format:  f,
		Mipmaps: t.Mipmaps,
		Fill:    &fill,
	}, nil
}

// Duration is a time.Duration written as a string like "250ms".
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Color is an RGBA colour written as "#rrggbb" or "#rrggbbaa".
type Color color.RGBA

func (c Color) Std() color.RGBA { return color.RGBA(c) }

func (c Color) MarshalText() ([]byte, error) {
	return []byte(fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)), nil
}

func (c *Color) UnmarshalText(b []byte) error {
	s := string(b)
	if !strings.HasPrefix(s, "#") || (len(s) != 7 && len(s) != 9) {
		return fmt.Errorf("colour %q: want #rrggbb or #rrggbbaa", s)
	}
	v, err := strconv.ParseUint(s[1:], 16, 32)
	if err != nil {
		return fmt.Errorf("colour %q: %w", s, err)
	}
	if len(s) == 7 {
		v = v<<8 | 0xff
	}
	*c = Color{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}
	return nil
}
