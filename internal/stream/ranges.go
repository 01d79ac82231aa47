package stream

import (
	"errors"
	"strconv"
	"strings"
)

var (
	// ErrBadRange is returned for a malformed Range header.
	ErrBadRange = errors.New("malformed range")
	// ErrRangeNotSatisfiable is returned when the requested start is past
	// the end of the asset.
	ErrRangeNotSatisfiable = errors.New("range not satisfiable")
)

// ByteRange is a parsed inclusive byte interval of an asset.
type ByteRange struct {
	Start int64
	End   int64
}

// Size returns the number of bytes covered by the range.
func (r ByteRange) Size() int64 { return r.End - r.Start + 1 }

// ParseRange parses a single "bytes=start-end" header against the asset's
// total size. The end is optional and defaults to the last byte. A start at
// or past the total size yields ErrRangeNotSatisfiable; an end past the
// last byte is clamped.
func ParseRange(header string, totalSize int64) (ByteRange, error) {
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return ByteRange{}, ErrBadRange
	}
	startStr, endStr, ok := strings.Cut(spec, "-")
	if !ok || startStr == "" {
		return ByteRange{}, ErrBadRange
	}
	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return ByteRange{}, ErrBadRange
	}
	end := totalSize - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < start {
			return ByteRange{}, ErrBadRange
		}
	}
	if start >= totalSize {
		return ByteRange{}, ErrRangeNotSatisfiable
	}
	if end > totalSize-1 {
		end = totalSize - 1
	}
	return ByteRange{Start: start, End: end}, nil
}
