package wgl

import (
	"errors"
	"fmt"
	"image/color"
	"syscall"
	"unsafe"

	"github.com/kirides/texshare/interop"
)

var errNotLocked = errors.New("wgl: texture not locked")

func (a *API) framebuffer(b *interop.Binding) (uint32, error) {
	if b.State() != interop.StateLocked {
		return 0, fmt.Errorf("%w: texture %d", errNotLocked, b.Name())
	}
	if fbo, ok := a.fbos[b.Name()]; ok {
		return fbo, nil
	}
	var fbo uint32
	syscall.SyscallN(a.p.genFramebuffers, 1, uintptr(unsafe.Pointer(&fbo)))
	syscall.SyscallN(a.p.bindFramebuffer, GL_FRAMEBUFFER, uintptr(fbo))
	syscall.SyscallN(a.p.framebufferTexture2D, GL_FRAMEBUFFER, GL_COLOR_ATTACHMENT0, GL_TEXTURE_2D, uintptr(b.Name()), 0)
	status, _, _ := syscall.SyscallN(a.p.checkFramebufferStatus, GL_FRAMEBUFFER)
	syscall.SyscallN(a.p.bindFramebuffer, GL_FRAMEBUFFER, 0)
	if status != GL_FRAMEBUFFER_COMPLETE {
		a.deleteFramebuffer(fbo)
		return 0, fmt.Errorf("wgl: framebuffer for texture %d incomplete: %#x", b.Name(), status)
	}
	a.fbos[b.Name()] = fbo
	return fbo, nil
}

func (a *API) deleteFramebuffer(fbo uint32) {
	syscall.SyscallN(a.p.deleteFramebuffers, 1, uintptr(unsafe.Pointer(&fbo)))
}

// Clear fills the locked texture with c.
func (a *API) Clear(b *interop.Binding, c color.RGBA) error {
	fbo, err := a.framebuffer(b)
	if err != nil {
		return err
	}
	tex := b.Texture()
	syscall.SyscallN(a.p.bindFramebuffer, GL_FRAMEBUFFER, uintptr(fbo))
	syscall.SyscallN(procGlViewport.Addr(), 0, 0, uintptr(tex.Width()), uintptr(tex.Height()))
	syscall.SyscallN(procGlClearColor.Addr(),
		f32(float32(c.R)/255), f32(float32(c.G)/255), f32(float32(c.B)/255), f32(float32(c.A)/255))
	syscall.SyscallN(procGlClear.Addr(), GL_COLOR_BUFFER_BIT)
	syscall.SyscallN(a.p.bindFramebuffer, GL_FRAMEBUFFER, 0)
	return glError("clear")
}

// ReadTexel reads one texel of the locked texture.
func (a *API) ReadTexel(b *interop.Binding, x, y int) (color.RGBA, error) {
	fbo, err := a.framebuffer(b)
	if err != nil {
		return color.RGBA{}, err
	}
	var px [4]byte
	syscall.SyscallN(a.p.bindFramebuffer, GL_READ_FRAMEBUFFER, uintptr(fbo))
	syscall.SyscallN(procGlReadPixels.Addr(), uintptr(x), uintptr(y), 1, 1, GL_RGBA, GL_UNSIGNED_BYTE, uintptr(unsafe.Pointer(&px[0])))
	syscall.SyscallN(a.p.bindFramebuffer, GL_READ_FRAMEBUFFER, 0)
	if err := glError("glReadPixels"); err != nil {
		return color.RGBA{}, err
	}
	return color.RGBA{R: px[0], G: px[1], B: px[2], A: px[3]}, nil
}

// Present scales the locked texture onto the default framebuffer of
// width x height pixels.
func (a *API) Present(b *interop.Binding, width, height int) error {
	fbo, err := a.framebuffer(b)
	if err != nil {
		return err
	}
	tex := b.Texture()
	syscall.SyscallN(a.p.bindFramebuffer, GL_READ_FRAMEBUFFER, uintptr(fbo))
	syscall.SyscallN(a.p.bindFramebuffer, GL_DRAW_FRAMEBUFFER, 0)
	syscall.SyscallN(procGlViewport.Addr(), 0, 0, uintptr(width), uintptr(height))
	syscall.SyscallN(a.p.blitFramebuffer,
		0, 0, uintptr(tex.Width()), uintptr(tex.Height()),
		0, 0, uintptr(width), uintptr(height),
		GL_COLOR_BUFFER_BIT, GL_LINEAR)
	syscall.SyscallN(a.p.bindFramebuffer, GL_READ_FRAMEBUFFER, 0)
	return glError("glBlitFramebuffer")
}

// Finish blocks until all submitted GL commands completed.
func (a *API) Finish() {
	syscall.SyscallN(procGlFinish.Addr())
}
