package csvreader

// errors.go defines the error kinds returned by the reader.
//
// All errors are wrapped with fmt.Errorf("...: %w") around one of the
// sentinels below, so callers classify them with errors.Is:
//
//	r, err := csvreader.Open(path, csvreader.Options{})
//	if errors.Is(err, csvreader.ErrFile) {
//	    // source missing, unreadable, empty or closed
//	}
//
// End of stream is never an error: Next reports it as (false, nil).

import "errors"

var (
	// ErrFile covers sources that are unreachable, unreadable or empty,
	// operations on a closed reader, and sources without any data rows.
	ErrFile = errors.New("csv file error")

	// ErrInvalidHeaderOrField covers empty header rows, titles that sanitize
	// to nothing, missing required headers, duplicate map/link columns and
	// map/link source fields that do not resolve.
	ErrInvalidHeaderOrField = errors.New("invalid header or field")

	// ErrNotInvocable is returned when a filter or link is built without a
	// callable function.
	ErrNotInvocable = errors.New("callback is not invocable")

	// ErrInvalidOption is returned when Options cannot be used to read a source.
	ErrInvalidOption = errors.New("invalid reader option")
)
