package storage

import (
	"errors"
	"fmt"
	"io"
)

var (
	ErrTooLarge      = errors.New("object is too large")
	ErrNotImage      = errors.New("content is not an image")
	ErrForbiddenHost = errors.New("host is not allowed")
)

// readLimited читает не больше limit байт; более длинное тело - ErrTooLarge.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}
	return data, nil
}
