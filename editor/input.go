package editor

// Key is a keyboard key code. Printable keys use their upper-case ASCII
// value, matching GLFW.
type Key int

const (
	KeyE      Key = 'E'
	KeyQ      Key = 'Q'
	KeyR      Key = 'R'
	KeyW      Key = 'W'
	KeyY      Key = 'Y'
	KeyZ      Key = 'Z'
	KeyEscape Key = 256
	KeyDelete Key = 261

	KeyLeftShift    Key = 340
	KeyLeftControl  Key = 341
	KeyRightShift   Key = 344
	KeyRightControl Key = 345
)

// Mouse button constants
const (
	MouseLeft   = 0
	MouseRight  = 1
	MouseMiddle = 2
)

// InputSource is polled once per frame by the InputManager.
type InputSource interface {
	IsKeyPressed(key int) bool
	IsMouseButtonPressed(button int) bool
	CursorPos() (float64, float64)
}

// InputManager tracks mouse and keyboard state for the editor
type InputManager struct {
	// Mouse state
	MouseX, MouseY           float64
	MouseDeltaX, MouseDeltaY float64
	lastMouseX, lastMouseY   float64
	ScrollDelta              float64

	mouseButtons     [3]bool
	mouseButtonsPrev [3]bool

	keys     map[Key]bool
	keysPrev map[Key]bool

	ShiftDown bool
	CtrlDown  bool

	source     InputSource
	firstFrame bool
}

var polledKeys = []Key{KeyQ, KeyW, KeyE, KeyR, KeyY, KeyZ, KeyEscape, KeyDelete}

func NewInputManager(source InputSource) *InputManager {
	return &InputManager{
		source:     source,
		keys:       make(map[Key]bool),
		keysPrev:   make(map[Key]bool),
		firstFrame: true,
	}
}

// AddScroll accumulates wheel input delivered by a callback.
func (im *InputManager) AddScroll(yoff float64) {
	im.ScrollDelta += yoff
}

// Update should be called once per frame to compute deltas and poll state
func (im *InputManager) Update() {
	x, y := im.source.CursorPos()
	if im.firstFrame {
		im.lastMouseX = x
		im.lastMouseY = y
		im.firstFrame = false
	}
	im.MouseDeltaX = x - im.lastMouseX
	im.MouseDeltaY = y - im.lastMouseY
	im.lastMouseX = x
	im.lastMouseY = y
	im.MouseX = x
	im.MouseY = y

	im.mouseButtonsPrev = im.mouseButtons
	for b := range im.mouseButtons {
		im.mouseButtons[b] = im.source.IsMouseButtonPressed(b)
	}

	im.ShiftDown = im.source.IsKeyPressed(int(KeyLeftShift)) || im.source.IsKeyPressed(int(KeyRightShift))
	im.CtrlDown = im.source.IsKeyPressed(int(KeyLeftControl)) || im.source.IsKeyPressed(int(KeyRightControl))

	for _, k := range polledKeys {
		im.keysPrev[k] = im.keys[k]
		im.keys[k] = im.source.IsKeyPressed(int(k))
	}
}

// EndFrame clears per-frame state
func (im *InputManager) EndFrame() {
	im.ScrollDelta = 0
}

func (im *InputManager) IsMouseDown(button int) bool {
	if button < 0 || button >= len(im.mouseButtons) {
		return false
	}
	return im.mouseButtons[button]
}

func (im *InputManager) IsMousePressed(button int) bool {
	if button < 0 || button >= len(im.mouseButtons) {
		return false
	}
	return im.mouseButtons[button] && !im.mouseButtonsPrev[button]
}

func (im *InputManager) IsMouseReleased(button int) bool {
	if button < 0 || button >= len(im.mouseButtons) {
		return false
	}
	return !im.mouseButtons[button] && im.mouseButtonsPrev[button]
}

func (im *InputManager) IsKeyDown(key Key) bool {
	return im.keys[key]
}

func (im *InputManager) IsKeyPressed(key Key) bool {
	return im.keys[key] && !im.keysPrev[key]
}

// PressedKeys lists the keys that went down this frame.
func (im *InputManager) PressedKeys() []Key {
	var out []Key
	for _, k := range polledKeys {
		if im.IsKeyPressed(k) {
			out = append(out, k)
		}
	}
	return out
}

// IsShortcut checks for a Ctrl+key press
func (im *InputManager) IsShortcut(key Key) bool {
	return im.CtrlDown && im.IsKeyPressed(key)
}

// IsShiftShortcut checks for Ctrl+Shift+key press
func (im *InputManager) IsShiftShortcut(key Key) bool {
	return im.CtrlDown && im.ShiftDown && im.IsKeyPressed(key)
}
