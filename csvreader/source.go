package csvreader

// source.go resolves a source string into a seekable stream.
//
// Local paths must exist, be readable regular files and be non-empty.
// http(s) URLs are checked with a HEAD request first and then downloaded to a
// temporary file so the reader can rewind; the file is removed on Close.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
)

// StatusError describes a remote source that answered with an error status.
type StatusError struct {
	URL        string
	Status     string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s", e.URL, e.Status)
}

// IsRemote reports whether source is an http or https URL.
func IsRemote(source string) bool {
	u, err := url.Parse(source)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// openedSource is a seekable stream plus the function releasing it.
type openedSource struct {
	rs      io.ReadSeeker
	release func() error
}

// openSource validates and opens a local path or remote URL.
func openSource(ctx context.Context, source string, client *http.Client) (*openedSource, error) {
	if IsRemote(source) {
		if err := checkRemote(ctx, client, source); err != nil {
			return nil, err
		}
		return downloadRemote(ctx, client, source)
	}
	if err := checkLocal(source); err != nil {
		return nil, err
	}
	f, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrFile, source, err)
	}
	return &openedSource{rs: f, release: f.Close}, nil
}

// checkLocal rejects paths that are missing, unreadable, directories or empty.
func checkLocal(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: file does not exist or is not readable: %s", ErrFile, path)
	}
	if fi.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrFile, path)
	}
	if fi.Size() == 0 {
		return fmt.Errorf("%w: file is empty: %s", ErrFile, path)
	}
	return nil
}

// checkRemote sends a HEAD request to uri.
func checkRemote(ctx context.Context, client *http.Client, uri string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, uri, nil)
	if err != nil {
		return fmt.Errorf("%w: unable to access remote file: %v", ErrFile, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: unable to access remote file: %v", ErrFile, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return fmt.Errorf("%w: unable to access remote file: %w", ErrFile, err)
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &StatusError{
			URL:        resp.Request.URL.Redacted(),
			Status:     resp.Status,
			StatusCode: resp.StatusCode,
		}
	}
	return nil
}

// downloadRemote copies uri into a temporary file.
func downloadRemote(ctx context.Context, client *http.Client, uri string) (src *openedSource, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFile, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to access remote file: %v", ErrFile, err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, fmt.Errorf("%w: unable to access remote file: %w", ErrFile, err)
	}

	tmp, err := os.CreateTemp("", "csvreader-*.csv")
	if err != nil {
		return nil, fmt.Errorf("%w: spool remote file: %v", ErrFile, err)
	}
	release := func() error {
		return errors.Join(tmp.Close(), os.Remove(tmp.Name()))
	}
	defer func() {
		if err != nil {
			_ = release()
		}
	}()

	n, err := io.Copy(tmp, resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: download %s: %v", ErrFile, uri, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: file is empty: %s", ErrFile, uri)
	}
	if _, err = tmp.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFile, err)
	}

	return &openedSource{rs: tmp, release: release}, nil
}
