package editor

// TransformMode selects what a gizmo drag changes.
type TransformMode int

const (
	ModeTranslate TransformMode = iota
	ModeRotate
	ModeScale
)

func (m TransformMode) String() string {
	switch m {
	case ModeTranslate:
		return "translate"
	case ModeRotate:
		return "rotate"
	case ModeScale:
		return "scale"
	}
	return "unknown"
}

// ParseTransformMode accepts the names returned by String.
func ParseTransformMode(s string) (TransformMode, bool) {
	switch s {
	case "translate":
		return ModeTranslate, true
	case "rotate":
		return ModeRotate, true
	case "scale":
		return ModeScale, true
	}
	return ModeTranslate, false
}

// State is the interaction state of a Controller.
type State int

const (
	StateIdle State = iota
	StateAttached
	StateDragging
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAttached:
		return "attached"
	case StateDragging:
		return "dragging"
	}
	return "unknown"
}
