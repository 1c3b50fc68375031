// Package platform builds the interop backend of the running OS.
package platform

import "errors"

// ErrUnsupported is returned by New on systems without Direct3D 11.
var ErrUnsupported = errors.New("platform: Direct3D 11 / OpenGL interop requires windows")

// Options for New.
type Options struct {
	// Debug creates the native device with its debug layer.
	Debug bool
}
