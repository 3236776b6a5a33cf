package scene

import "errors"

type disposable interface {
	Dispose() error
}

// DisposeTree releases the geometry, material and owned textures of every
// node under root. Resources shared between nodes are released once. All
// nodes are visited even when some releases fail; the failures are joined.
func DisposeTree(root *Node) error {
	if root == nil {
		return nil
	}
	seen := make(map[disposable]struct{})
	var errs []error
	release := func(d disposable) {
		if _, ok := seen[d]; ok {
			return
		}
		seen[d] = struct{}{}
		if err := d.Dispose(); err != nil {
			errs = append(errs, err)
		}
	}

	root.Traverse(func(n *Node) {
		if n.Geometry != nil {
			release(n.Geometry)
		}
		if n.Material != nil {
			release(n.Material)
			for _, t := range n.Material.OwnedTextures() {
				release(t)
			}
		}
	})
	return errors.Join(errs...)
}
