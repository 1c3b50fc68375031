// Command texshare runs the producer or consumer side of a shared
// Direct3D 11 texture drawn through OpenGL.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/kirides/texshare/interop"
)

// glfw and both graphics contexts are bound to the main thread until the
// render loop takes the context over.
func init() { runtime.LockOSThread() }

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if l := interop.Logger(); l.Enabled(ctx, slog.LevelError) {
			l.Error("texshare failed", "err", err)
		} else {
			fmt.Fprintf(os.Stderr, "texshare: %v\n", err)
		}
		cancel()
		os.Exit(1)
	}
}
