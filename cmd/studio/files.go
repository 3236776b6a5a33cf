package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"

	"scene-studio/environment"
	"scene-studio/scene"
)

// glbType is the binary glTF container.
var glbType = filetype.NewType("glb", "model/gltf-binary")

func init() {
	filetype.AddMatcher(glbType, func(buf []byte) bool {
		return bytes.HasPrefix(buf, []byte("glTF"))
	})
}

type fileKind int

const (
	kindUnknown fileKind = iota
	kindModel
	kindImage
)

func (k fileKind) String() string {
	switch k {
	case kindModel:
		return "model"
	case kindImage:
		return "image"
	}
	return "unknown"
}

// classify routes a payload to the model importer or the background loader.
// JSON glTF and OBJ have no magic number and are recognized by extension.
func classify(name string, data []byte) fileKind {
	kind, _ := filetype.Match(data)
	switch {
	case kind == glbType:
		return kindModel
	case kind == environment.HDRType:
		return kindImage
	case kind != types.Unknown && filetype.IsImage(data):
		return kindImage
	}
	switch {
	case len(data) == 0:
		return kindUnknown
	case strings.EqualFold(filepath.Ext(name), ".gltf") && bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")):
		return kindModel
	case scene.IsOBJ(name):
		return kindModel
	}
	return kindUnknown
}

type inputFile struct {
	Path string
	Name string
	Data []byte
	Kind fileKind
}

func readInput(path string) (inputFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return inputFile{}, fmt.Errorf("read %s: %w", path, err)
	}
	f := inputFile{Path: path, Name: filepath.Base(path), Data: data}
	f.Kind = classify(f.Name, data)
	if f.Kind == kindUnknown {
		return f, fmt.Errorf("%s: unsupported file type", path)
	}
	return f, nil
}

// readInputs reads every path and splits them into models and at most one
// background image.
func readInputs(paths []string) (models []inputFile, background *inputFile, err error) {
	for _, p := range paths {
		f, err := readInput(p)
		if err != nil {
			return nil, nil, err
		}
		switch f.Kind {
		case kindModel:
			models = append(models, f)
		case kindImage:
			if background != nil {
				return nil, nil, fmt.Errorf("more than one background image: %s and %s", background.Path, f.Path)
			}
			bg := f
			background = &bg
		}
	}
	return models, background, nil
}
