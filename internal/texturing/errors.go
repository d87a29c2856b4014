package texturing

import "errors"

// Pipeline errors. Precondition and parameter errors are fatal and
// reported immediately; photometric and packing problems are absorbed
// locally and only degrade output quality.
var (
	ErrPrecondition     = errors.New("texturing stage invoked out of order")
	ErrInvalidParameter = errors.New("invalid texturing parameter")
)
