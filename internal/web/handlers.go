package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/JonMunkholm/csvreader/csvreader"
	"github.com/JonMunkholm/csvreader/internal/logging"
	"github.com/JonMunkholm/csvreader/internal/web/templates"
	"github.com/a-h/templ"
	"github.com/google/uuid"
)

// PreviewResponse is the JSON body of a successful preview.
type PreviewResponse struct {
	Source    string       `json:"source"`
	Titles    []string     `json:"titles"`
	Fields    []string     `json:"fields"`
	LineCount int          `json:"line_count"`
	Rows      []PreviewRow `json:"rows"`
	Truncated bool         `json:"truncated"`
}

// PreviewRow is one data row keyed by sanitized field name.
type PreviewRow struct {
	Key    int               `json:"key"`
	Values map[string]string `json:"values"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	templ.Handler(templates.IndexPage()).ServeHTTP(w, r)
}

// handlePreviewPage renders the HTML preview of ?source=.
func (s *Server) handlePreviewPage(w http.ResponseWriter, r *http.Request) {
	p, err := s.previewSource(r)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	templ.Handler(templates.PreviewPage(p)).ServeHTTP(w, r)
}

// handlePreviewAPI returns the JSON preview of ?source=.
func (s *Server) handlePreviewAPI(w http.ResponseWriter, r *http.Request) {
	p, err := s.previewSource(r)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, toResponse(p))
}

// handleUploadPreview previews a CSV posted as the multipart field "file".
// The upload is spooled to a temporary file so the reader can seek.
func (s *Server) handleUploadPreview(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			respondError(w, r, err, statusFor(err))
			return
		}
		respondError(w, r, fmt.Errorf("%w: %v", errNoFile, err), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, fmt.Errorf("%w: %v", errNoFile, err), http.StatusBadRequest)
		return
	}
	defer file.Close()

	opts, err := requestOptions(r, s.opts)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	spool, err := spoolUpload(file)
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	defer os.Remove(spool.Name())

	logger := logging.WithFields(r.Context(), "filename", header.Filename, "size", header.Size)
	opts.Logger = logger

	rd, err := csvreader.NewReader(spool, opts)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	defer rd.Close()

	p, err := buildPreview(rd, header.Filename, parseLimit(r, s.cfg.Upload.PreviewRows, s.cfg.Upload.MaxPreviewRows))
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	logger.Info("upload previewed", "rows", len(p.Rows), "line_count", p.LineCount)
	writeJSON(w, toResponse(p))
}

// spoolUpload copies an upload into a uniquely named temporary file and
// rewinds it.
func spoolUpload(src io.Reader) (*os.File, error) {
	f, err := os.Create(filepath.Join(os.TempDir(), "csvpreview-"+uuid.NewString()+".csv"))
	if err != nil {
		return nil, fmt.Errorf("spool upload: %w", err)
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("spool upload: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("spool upload: %w", err)
	}
	return f, nil
}

// previewSource opens ?source= with the request's reader options.
func (s *Server) previewSource(r *http.Request) (templates.Preview, error) {
	source, err := s.resolveSource(r.URL.Query().Get("source"))
	if err != nil {
		return templates.Preview{}, err
	}
	opts, err := requestOptions(r, s.opts)
	if err != nil {
		return templates.Preview{}, err
	}
	opts.Logger = logging.WithFields(r.Context(), "source", source)

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.CSV.RemoteTimeout)
	defer cancel()

	rd, err := csvreader.OpenContext(ctx, source, opts)
	if err != nil {
		return templates.Preview{}, err
	}
	defer rd.Close()

	limit := parseLimit(r, s.cfg.Upload.PreviewRows, s.cfg.Upload.MaxPreviewRows)
	return buildPreview(rd, r.URL.Query().Get("source"), limit)
}

// resolveSource applies the server's source policy. Local paths are
// resolved inside PreviewDir and may not escape it.
func (s *Server) resolveSource(source string) (string, error) {
	switch {
	case source == "":
		return "", errNoSource
	case csvreader.IsRemote(source):
		if !s.cfg.Server.AllowRemote {
			return "", errRemoteDisabled
		}
		return source, nil
	case s.cfg.Server.PreviewDir == "":
		return "", errLocalDisabled
	case !filepath.IsLocal(source):
		return "", fmt.Errorf("%w: %s", errOutsideDir, source)
	}
	return filepath.Join(s.cfg.Server.PreviewDir, source), nil
}

// buildPreview reads up to limit rows starting at the reader's current row.
func buildPreview(rd *csvreader.Reader, name string, limit int) (templates.Preview, error) {
	count, err := rd.LineCount()
	if err != nil {
		return templates.Preview{}, err
	}

	p := templates.Preview{
		Source:    name,
		Titles:    rd.HeaderTitles(),
		LineCount: count,
	}
	for _, f := range rd.Header().Fields() {
		p.Fields = append(p.Fields, f.Name)
	}

	for key, row := range rd.Rows() {
		if len(p.Rows) == limit {
			p.Truncated = true
			break
		}
		p.Rows = append(p.Rows, templates.PreviewRow{Key: key, Values: row.Values()})
	}
	if err := rd.Err(); err != nil {
		return templates.Preview{}, err
	}
	return p, nil
}

func toResponse(p templates.Preview) PreviewResponse {
	resp := PreviewResponse{
		Source:    p.Source,
		Titles:    p.Titles,
		Fields:    p.Fields,
		LineCount: p.LineCount,
		Rows:      make([]PreviewRow, len(p.Rows)),
		Truncated: p.Truncated,
	}
	for i, row := range p.Rows {
		values := make(map[string]string, len(row.Values))
		for j, v := range row.Values {
			if j < len(p.Fields) {
				values[p.Fields[j]] = v
			}
		}
		resp.Rows[i] = PreviewRow{Key: row.Key, Values: values}
	}
	return resp
}
