// Package wgl drives OpenGL through opengl32.dll and maps Direct3D 11
// textures into the current context with WGL_NV_DX_interop.
package wgl

import "strings"

const (
	GL_NO_ERROR             = 0
	GL_TEXTURE_2D           = 0x0DE1
	GL_RGBA                 = 0x1908
	GL_UNSIGNED_BYTE        = 0x1401
	GL_LINEAR               = 0x2601
	GL_NEAREST              = 0x2600
	GL_TEXTURE_MIN_FILTER   = 0x2801
	GL_TEXTURE_MAG_FILTER   = 0x2800
	GL_COLOR_BUFFER_BIT     = 0x4000
	GL_FRAMEBUFFER          = 0x8D40
	GL_READ_FRAMEBUFFER     = 0x8CA8
	GL_DRAW_FRAMEBUFFER     = 0x8CA9
	GL_COLOR_ATTACHMENT0    = 0x8CE0
	GL_FRAMEBUFFER_COMPLETE = 0x8CD5

	WGL_ACCESS_READ_ONLY_NV     = 0x0000
	WGL_ACCESS_READ_WRITE_NV    = 0x0001
	WGL_ACCESS_WRITE_DISCARD_NV = 0x0002
)

// InteropExtension is the WGL extension required to map D3D resources.
const InteropExtension = "WGL_NV_DX_interop"

// hasExtension reports whether the space separated list contains name.
func hasExtension(list, name string) bool {
	for _, e := range strings.Fields(list) {
		if e == name {
			return true
		}
	}
	return false
}
