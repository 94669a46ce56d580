// Package gldraw implements glplayback.RenderSurface with fixed-function
// OpenGL 2.1.
//
// The host must create a compatibility profile context; core profiles have
// no immediate mode.
package gldraw

import (
	"errors"
	"fmt"

	"github.com/go-gl/gl/v2.1/gl"
)

// ErrNotInitialized is returned by a Surface not created with New.
var ErrNotInitialized = errors.New("gldraw: GL bindings not initialized")

// Window is the part of the host window the surface needs.
// *glfw.Window satisfies it.
type Window interface {
	MakeContextCurrent()
	SwapBuffers()
	GetFramebufferSize() (width, height int)
}

// Surface draws textures as a full-screen quad on a window.
type Surface struct {
	win    Window
	ready  bool
	width  int
	height int
}

// New loads the GL function pointers. The window's context must be current
// on the calling thread.
func New(win Window) (*Surface, error) {
	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("gldraw: init: %w", err)
	}
	return &Surface{win: win, ready: true}, nil
}

// Version returns the GL_VERSION string of the current context.
func (s *Surface) Version() string {
	return gl.GoStr(gl.GetString(gl.VERSION))
}

// MakeCurrent binds the window's context to the calling thread and resizes
// the viewport when the framebuffer size changed.
func (s *Surface) MakeCurrent() error {
	if !s.ready {
		return ErrNotInitialized
	}
	s.win.MakeContextCurrent()

	w, h := s.win.GetFramebufferSize()
	if w != s.width || h != s.height {
		gl.Viewport(0, 0, int32(w), int32(h))
		s.width, s.height = w, h
	}
	return nil
}

// BindTexture clears the frame and binds texture id for replace-mode drawing.
func (s *Surface) BindTexture(id uint32) {
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
	gl.Enable(gl.TEXTURE_2D)
	gl.TexEnvf(gl.TEXTURE_ENV, gl.TEXTURE_ENV_MODE, gl.REPLACE)
	gl.BindTexture(gl.TEXTURE_2D, id)
}

// DrawFullscreenQuad covers clip space. Texture rows start at the top.
func (s *Surface) DrawFullscreenQuad() {
	gl.Begin(gl.QUADS)
	gl.TexCoord2f(0, 1)
	gl.Vertex2f(-1, -1)
	gl.TexCoord2f(1, 1)
	gl.Vertex2f(1, -1)
	gl.TexCoord2f(1, 0)
	gl.Vertex2f(1, 1)
	gl.TexCoord2f(0, 0)
	gl.Vertex2f(-1, 1)
	gl.End()
}

// UnbindTexture restores the texture unit left by BindTexture.
func (s *Surface) UnbindTexture() {
	gl.BindTexture(gl.TEXTURE_2D, 0)
	gl.Disable(gl.TEXTURE_2D)
}

// Present swaps the window buffers.
func (s *Surface) Present() {
	s.win.SwapBuffers()
}
