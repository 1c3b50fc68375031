//go:build !windows

package platform

import (
	"github.com/kirides/texshare/app"
	"github.com/kirides/texshare/interop"
)

func New(opts Options) (interop.Backend, app.Painter, error) {
	return nil, nil, ErrUnsupported
}
