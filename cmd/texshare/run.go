package main

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"

	"github.com/spf13/cobra"

	"github.com/kirides/texshare/app"
	"github.com/kirides/texshare/channel"
	"github.com/kirides/texshare/config"
	"github.com/kirides/texshare/interop"
	"github.com/kirides/texshare/platform"
	"github.com/kirides/texshare/preview"
	"github.com/kirides/texshare/window"
)

type session interface {
	SetPreview(s app.FrameSink)
	Run(ctx context.Context, s app.Surface) error
}

type colorSetter interface {
	SetColor(c color.RGBA, pulse bool)
}

type sessionFunc func(ictx *interop.Context, ch *channel.Channel, painter app.Painter) session

func newProducerCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "producer",
		Short: "Allocate the shared texture, publish it and draw into it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			desc, err := cfg.Texture.Desc()
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, opts, "Producer", func(ictx *interop.Context, ch *channel.Channel, painter app.Painter) session {
				return app.NewProducer(ictx, ch, painter, app.ProducerOptions{
					Texture:         desc,
					Clear:           cfg.Producer.Clear.Std(),
					Pulse:           cfg.Producer.Pulse,
					Exclusive:       cfg.Producer.Exclusive,
					FPS:             cfg.Producer.FPS,
					PreviewInterval: cfg.Preview.Every.Std(),
				})
			})
		},
	}
}

func newConsumerCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "consumer",
		Short: "Wait for a published texture, import it and present it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			var sample *image.Point
			if cfg.Consumer.SampleX >= 0 && cfg.Consumer.SampleY >= 0 {
				sample = &image.Point{X: cfg.Consumer.SampleX, Y: cfg.Consumer.SampleY}
			}
			return run(cmd.Context(), cfg, opts, "Consumer", func(ictx *interop.Context, ch *channel.Channel, painter app.Painter) session {
				return app.NewConsumer(ictx, ch, painter, app.ConsumerOptions{
					ImportAttempts:  cfg.Consumer.ImportAttempts,
					RetryDelay:      cfg.Consumer.RetryDelay.Std(),
					Sample:          sample,
					FPS:             cfg.Consumer.FPS,
					PreviewInterval: cfg.Preview.Every.Std(),
				})
			})
		},
	}
}

func windowConfig(cfg config.Window, title string) window.Config {
	if cfg.Title != "" {
		title = cfg.Title
	}
	return window.Config{
		Title:        title,
		Width:        cfg.Width,
		Height:       cfg.Height,
		Display:      cfg.Display,
		X:            cfg.X,
		Y:            cfg.Y,
		Resizable:    cfg.Resizable,
		Borderless:   cfg.Borderless,
		GLMajor:      cfg.GLMajor,
		GLMinor:      cfg.GLMinor,
		SwapInterval: cfg.SwapInterval,
	}
}

// run opens the window on the main thread and runs the session on the
// render thread with its own interop context and channel mapping.
func run(ctx context.Context, cfg config.Config, o *options, title string, newSession sessionFunc) error {
	if err := window.Init(); err != nil {
		return err
	}
	defer window.Terminate()
	w, err := window.New(windowConfig(cfg.Window, title))
	if err != nil {
		return err
	}
	defer w.Destroy()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var (
		sink app.FrameSink
		wg   sync.WaitGroup
	)
	if cfg.Preview.Enabled {
		srv := preview.New(preview.Config{
			Addr:    cfg.Preview.Addr,
			Width:   cfg.Preview.Width,
			Quality: cfg.Preview.Quality,
			FPS:     cfg.Preview.FPS,
			Title:   title,
		})
		sink = srv
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Run(ctx); err != nil {
				interop.Logger().Error("preview server", "err", err)
			}
		}()
	}

	err = app.Run(ctx, w, window.Events{}, func(ctx context.Context, s app.Surface) error {
		backend, painter, err := platform.New(platform.Options{Debug: o.debug})
		if err != nil {
			return err
		}
		ictx, err := interop.Open(backend)
		if err != nil {
			return err
		}
		ch, err := channel.Open(cfg.Channel.Name)
		if err != nil {
			return errors.Join(err, ictx.Close())
		}
		ch.Interval = cfg.Channel.Interval.Std()

		sess := newSession(ictx, ch, painter)
		if sink != nil {
			sess.SetPreview(sink)
		}
		if o.configPath != "" {
			wg.Add(1)
			go func() {
				defer wg.Done()
				watch(ctx, o, sess)
			}()
		}
		err = sess.Run(ctx, s)
		return errors.Join(err, ictx.Close(), ch.Close())
	})
	cancel()
	wg.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// watch applies the parts of a reloaded config that can change while
// running: the log level, unless set by flag, and the producer's colour.
func watch(ctx context.Context, o *options, sess session) {
	err := config.Watch(ctx, o.configPath, func(cfg config.Config) {
		if lvl, err := cfg.Log.SlogLevel(); err == nil && o.logLevel == "" {
			logLevel.Set(lvl)
		}
		if cs, ok := sess.(colorSetter); ok {
			cs.SetColor(cfg.Producer.Clear.Std(), cfg.Producer.Pulse)
		}
	})
	if err != nil {
		interop.Logger().Warn("config watch stopped", "err", err)
	}
}
