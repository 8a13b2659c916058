package index

import "errors"

// ErrVectorLengthMismatch indicates two vectors have different dimensions.
var ErrVectorLengthMismatch = errors.New("vector length mismatch")

// ErrEmptyIndex is returned by Nearest when the index holds no entries.
var ErrEmptyIndex = errors.New("index has no entries")
