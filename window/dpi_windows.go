package window

import (
	"github.com/kirides/texshare/interop"
	"github.com/kirides/texshare/win"
)

// Make thread PerMonitorV2 Dpi aware if supported on OS so the window size
// is in physical pixels.
func setDPIAware() {
	if !win.IsValidDpiAwarenessContext(win.DpiAwarenessContextPerMonitorAwareV2) {
		return
	}
	if _, err := win.SetThreadDpiAwarenessContext(win.DpiAwarenessContextPerMonitorAwareV2); err != nil {
		interop.Logger().Warn("set thread dpi awareness", "err", err)
		return
	}
	interop.Logger().Debug("enabled PerMonitorAwareV2 dpi awareness")
}
