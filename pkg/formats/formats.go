// Package formats provides codecs for the mesh, visibility and OBJ/MTL
// files consumed and produced by the texturing pipeline.
package formats
