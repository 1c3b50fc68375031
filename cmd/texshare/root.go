package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/kirides/texshare/config"
	"github.com/kirides/texshare/interop"
)

// logLevel is shared by every handler so a reloaded config can change it.
var logLevel slog.LevelVar

type options struct {
	configPath string
	logLevel   string
	channel    string
	debug      bool
	preview    bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "texshare",
		Short:         "Share a Direct3D 11 texture with OpenGL across processes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	f := root.PersistentFlags()
	f.StringVarP(&opts.configPath, "config", "c", "", "TOML configuration file")
	f.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")
	f.StringVar(&opts.channel, "channel", "", "name of the shared memory channel")
	f.BoolVar(&opts.debug, "debug-device", false, "create the Direct3D 11 device with the debug layer")
	f.BoolVar(&opts.preview, "preview", false, "serve an MJPEG preview of the shared texture")

	root.AddCommand(newProducerCmd(opts), newConsumerCmd(opts), newProbeCmd(opts))
	return root
}

// load reads the configuration, applies the flags and installs the logger.
func (o *options) load(stderr io.Writer) (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.channel != "" {
		cfg.Channel.Name = o.channel
	}
	if o.preview {
		cfg.Preview.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	l, err := newLogger(cfg.Log, stderr)
	if err != nil {
		return config.Config{}, err
	}
	slog.SetDefault(l)
	interop.SetLogger(l)
	return cfg, nil
}

func newLogger(cfg config.Log, w io.Writer) (*slog.Logger, error) {
	lvl, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	logLevel.Set(lvl)
	hopts := &slog.HandlerOptions{Level: &logLevel}
	var h slog.Handler
	if cfg.Format == "json" {
		h = slog.NewJSONHandler(w, hopts)
	} else {
		h = slog.NewTextHandler(w, hopts)
	}
	return slog.New(h), nil
}
