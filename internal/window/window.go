// Package window hosts the studio in a desktop window: it owns the GLFW
// window and its OpenGL context, drives the frame queue and maps mouse and
// keyboard input onto editor operations.
//
// GLFW and every OpenGL call must stay on the main OS thread. Create the
// Window from main and run the loop there.
package window

import (
	"fmt"
	"runtime"
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"
)

func init() {
	runtime.LockOSThread()
}

type Config struct {
	Width     int
	Height    int
	Title     string
	Resizable bool
	VSync     bool
	// Hidden creates an invisible window, used for offscreen captures.
	Hidden bool
}

func DefaultConfig() Config {
	return Config{
		Width:     1280,
		Height:    720,
		Title:     "Scene Studio",
		Resizable: true,
		VSync:     true,
	}
}

// Window is a GLFW window with a current OpenGL 4.1 core context.
type Window struct {
	handle *glfw.Window

	width, height int

	onResize []func(width, height int)
	onScroll []func(xoff, yoff float64)
}

func New(cfg Config) (*Window, error) {
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize GLFW: %w", err)
	}

	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	glfw.WindowHint(glfw.Resizable, boolToInt(cfg.Resizable))
	glfw.WindowHint(glfw.Visible, boolToInt(!cfg.Hidden))

	handle, err := glfw.CreateWindow(cfg.Width, cfg.Height, cfg.Title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("failed to create window: %w", err)
	}
	handle.MakeContextCurrent()
	glfw.SwapInterval(boolToInt(cfg.VSync))

	w := &Window{
		handle: handle,
		width:  cfg.Width,
		height: cfg.Height,
	}
	w.width, w.height = handle.GetSize()

	handle.SetSizeCallback(func(_ *glfw.Window, width, height int) {
		w.width, w.height = width, height
		for _, fn := range w.onResize {
			fn(width, height)
		}
	})
	handle.SetScrollCallback(func(_ *glfw.Window, xoff, yoff float64) {
		for _, fn := range w.onScroll {
			fn(xoff, yoff)
		}
	})
	return w, nil
}

// Size returns the window size in screen coordinates, the logical size of
// the canvas.
func (w *Window) Size() (int, int) {
	return w.width, w.height
}

// PixelRatio is the framebuffer width over the window width: 2 on most
// high density displays.
func (w *Window) PixelRatio() float32 {
	if w.width <= 0 {
		return 1
	}
	fbWidth, _ := w.handle.GetFramebufferSize()
	if fbWidth <= 0 {
		return 1
	}
	return float32(fbWidth) / float32(w.width)
}

func (w *Window) FramebufferSize() (int, int) {
	return w.handle.GetFramebufferSize()
}

// OnResize registers fn for window size changes. Callbacks run from
// PollEvents on the main thread.
func (w *Window) OnResize(fn func(width, height int)) {
	w.onResize = append(w.onResize, fn)
}

func (w *Window) OnScroll(fn func(xoff, yoff float64)) {
	w.onScroll = append(w.onScroll, fn)
}

func (w *Window) ShouldClose() bool {
	return w.handle.ShouldClose()
}

func (w *Window) SetShouldClose(v bool) {
	w.handle.SetShouldClose(v)
}

func (w *Window) SetTitle(title string) {
	w.handle.SetTitle(title)
}

func (w *Window) PollEvents() {
	glfw.PollEvents()
}

// WaitEvents blocks until an event arrives or timeout passes.
func (w *Window) WaitEvents(timeout time.Duration) {
	glfw.WaitEventsTimeout(timeout.Seconds())
}

func (w *Window) SwapBuffers() {
	w.handle.SwapBuffers()
}

func (w *Window) IsKeyPressed(key int) bool {
	return w.handle.GetKey(glfw.Key(key)) == glfw.Press
}

func (w *Window) IsMouseButtonPressed(button int) bool {
	return w.handle.GetMouseButton(glfw.MouseButton(button)) == glfw.Press
}

func (w *Window) CursorPos() (float64, float64) {
	return w.handle.GetCursorPos()
}

func (w *Window) Destroy() {
	w.handle.Destroy()
	glfw.Terminate()
}

func boolToInt(b bool) int {
	if b {
		return glfw.True
	}
	return glfw.False
}
