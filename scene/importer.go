package scene

import (
	"context"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Importer picks the decoder for a model payload: Wavefront OBJ by file
// extension, glTF otherwise.
type Importer struct {
	gltf *GLTFImporter
	obj  *OBJImporter
}

func NewImporter(logger *zap.Logger) *Importer {
	return &Importer{
		gltf: NewGLTFImporter(logger),
		obj:  NewOBJImporter(logger),
	}
}

func (imp *Importer) Import(ctx context.Context, name string, data []byte) (*Node, error) {
	if IsOBJ(name) {
		return imp.obj.Import(ctx, name, data)
	}
	return imp.gltf.Import(ctx, name, data)
}

// IsOBJ reports whether name has the .obj extension.
func IsOBJ(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".obj")
}
