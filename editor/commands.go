package editor

import (
	"scene-studio/core"
	"scene-studio/scene"
)

// Command represents an undoable editor action
type Command interface {
	Execute()
	Undo()
	Description() string
}

// History manages undo/redo stacks
type History struct {
	undoStack []Command
	redoStack []Command
	maxDepth  int
}

// NewHistory creates a new history with the given max undo depth
func NewHistory(maxDepth int) *History {
	if maxDepth < 1 {
		maxDepth = 1
	}
	return &History{
		undoStack: make([]Command, 0, maxDepth),
		redoStack: make([]Command, 0, maxDepth),
		maxDepth:  maxDepth,
	}
}

// Do executes a command and pushes it to the undo stack
func (h *History) Do(cmd Command) {
	cmd.Execute()
	h.Record(cmd)
}

// Record pushes a command whose effect has already been applied.
func (h *History) Record(cmd Command) {
	h.undoStack = append(h.undoStack, cmd)
	if len(h.undoStack) > h.maxDepth {
		h.undoStack = h.undoStack[1:]
	}
	// Clear redo stack on new action
	h.redoStack = h.redoStack[:0]
}

// Undo reverts the last action and returns it, or nil when there is none.
func (h *History) Undo() Command {
	if len(h.undoStack) == 0 {
		return nil
	}
	cmd := h.undoStack[len(h.undoStack)-1]
	h.undoStack = h.undoStack[:len(h.undoStack)-1]
	cmd.Undo()
	h.redoStack = append(h.redoStack, cmd)
	return cmd
}

// Redo reapplies the last undone action and returns it.
func (h *History) Redo() Command {
	if len(h.redoStack) == 0 {
		return nil
	}
	cmd := h.redoStack[len(h.redoStack)-1]
	h.redoStack = h.redoStack[:len(h.redoStack)-1]
	cmd.Execute()
	h.undoStack = append(h.undoStack, cmd)
	return cmd
}

func (h *History) CanUndo() bool { return len(h.undoStack) > 0 }

func (h *History) CanRedo() bool { return len(h.redoStack) > 0 }

// Clear wipes all undo/redo history
func (h *History) Clear() {
	h.undoStack = h.undoStack[:0]
	h.redoStack = h.redoStack[:0]
}

// Forget drops every command that targets node, e.g. after it left the scene.
func (h *History) Forget(node *scene.Node) {
	keep := func(stack []Command) []Command {
		out := stack[:0]
		for _, cmd := range stack {
			if tc, ok := cmd.(*TransformCommand); ok && tc.Node == node {
				continue
			}
			out = append(out, cmd)
		}
		return out
	}
	h.undoStack = keep(h.undoStack)
	h.redoStack = keep(h.redoStack)
}

// TransformCommand records a transform change on a node
type TransformCommand struct {
	Node         *scene.Node
	OldTransform core.Transform
	NewTransform core.Transform
	desc         string
}

func NewTransformCommand(node *scene.Node, oldTransform, newTransform core.Transform, desc string) *TransformCommand {
	return &TransformCommand{
		Node:         node,
		OldTransform: oldTransform,
		NewTransform: newTransform,
		desc:         desc,
	}
}

func (c *TransformCommand) Execute()            { c.Node.SetTransform(c.NewTransform) }
func (c *TransformCommand) Undo()               { c.Node.SetTransform(c.OldTransform) }
func (c *TransformCommand) Description() string { return c.desc }
