package preview

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidRange  = errors.New("invalid range format")
	ErrUnsatisfiable = errors.New("range not satisfiable")
)

// ByteRange is an inclusive byte interval of a preview.
type ByteRange struct {
	Start int64
	End   int64
}

func (r ByteRange) Length() int64 {
	return r.End - r.Start + 1
}

func (r ByteRange) Header(total int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, total)
}

// ParseRange parses a Range header against a preview of the given size.
// Only the first range of a multi-range request is honoured. ok is false
// when the header is empty.
func ParseRange(header string, size int64) (r ByteRange, ok bool, err error) {
	if header == "" {
		return ByteRange{}, false, nil
	}

	spec, found := strings.CutPrefix(header, "bytes=")
	if !found {
		return ByteRange{}, false, ErrInvalidRange
	}
	if first, _, multi := strings.Cut(spec, ","); multi {
		spec = strings.TrimSpace(first)
	}

	startStr, endStr, found := strings.Cut(spec, "-")
	if !found {
		return ByteRange{}, false, ErrInvalidRange
	}

	if startStr == "" {
		n, perr := strconv.ParseInt(endStr, 10, 64)
		if perr != nil || n <= 0 {
			return ByteRange{}, false, ErrInvalidRange
		}
		r = ByteRange{Start: max(size-n, 0), End: size - 1}
	} else {
		start, perr := strconv.ParseInt(startStr, 10, 64)
		if perr != nil || start < 0 {
			return ByteRange{}, false, ErrInvalidRange
		}
		end := size - 1
		if endStr != "" {
			end, perr = strconv.ParseInt(endStr, 10, 64)
			if perr != nil {
				return ByteRange{}, false, ErrInvalidRange
			}
		}
		r = ByteRange{Start: start, End: end}
	}

	if r.Start > r.End || r.Start >= size {
		return ByteRange{}, false, ErrUnsatisfiable
	}
	r.End = min(r.End, size-1)

	return r, true, nil
}
