package pagination

import (
	"errors"
	"strconv"
)

// MaxLimit caps a requested page size
const MaxLimit = 100

var (
	ErrInvalidLimit  = errors.New("invalid limit parameter")
	ErrInvalidOffset = errors.New("invalid offset parameter")
)

// Params is a parsed limit/offset window. A zero Limit leaves the page size
// to the caller's default. HasOffset is false when no offset was supplied.
type Params struct {
	Limit     int
	Offset    int
	HasOffset bool
}

// Parse reads limit and offset query values. offsetPresent distinguishes an
// absent offset from an explicit one.
func Parse(limitStr, offsetStr string, offsetPresent bool) (Params, error) {
	var params Params

	if limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l < 0 {
			return Params{}, ErrInvalidLimit
		}
		params.Limit = min(l, MaxLimit)
	}

	if offsetPresent {
		o, err := strconv.Atoi(offsetStr)
		if err != nil || o < 0 {
			return Params{}, ErrInvalidOffset
		}
		params.Offset = o
		params.HasOffset = true
	}

	return params, nil
}
