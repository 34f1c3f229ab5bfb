package web

import (
	"net"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/csvreader/csvreader"
	"github.com/JonMunkholm/csvreader/internal/config"
)

// clientIP returns the host part of RemoteAddr.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// parseLimit reads the limit query parameter, falling back to def and
// capping at ceiling.
func parseLimit(r *http.Request, def, ceiling int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n < 1 {
		return def
	}
	return min(n, ceiling)
}

// requestOptions overrides base with the reader parameters of the request:
// delimiter, enclosure, escape, headerRow and headerCase.
func requestOptions(r *http.Request, base csvreader.Options) (csvreader.Options, error) {
	opts := base
	q := r.URL.Query()

	for name, dst := range map[string]*rune{
		"delimiter": &opts.Delimiter,
		"enclosure": &opts.Enclosure,
		"escape":    &opts.Escape,
	} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		c, err := config.ParseChar(name, v)
		if err != nil {
			return opts, optionError(err.Error())
		}
		*dst = c
	}

	if v := q.Get("headerRow"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, optionError("headerRow must be a number")
		}
		opts.HeaderRow = n
	}
	if v := q.Get("headerCase"); v != "" {
		hc, err := csvreader.ParseHeaderCase(v)
		if err != nil {
			return opts, err
		}
		opts.HeaderCase = hc
	}
	return opts, nil
}

type optionError string

func (e optionError) Error() string { return string(e) }

func (e optionError) Unwrap() error { return csvreader.ErrInvalidOption }
