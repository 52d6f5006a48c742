package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/claimant-intake/internal/fetcher"
	"github.com/sells-group/claimant-intake/internal/ingest"
	"github.com/sells-group/claimant-intake/internal/model"
	"github.com/sells-group/claimant-intake/internal/staging"
)

// requestError is an input error reported to the caller with its status.
type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(msg string) error {
	return &requestError{status: http.StatusBadRequest, msg: msg}
}

// statusFor maps an error to an HTTP status and caller-facing message.
// Unexpected errors are logged and reported as 500.
func statusFor(r *http.Request, err error) (int, string) {
	var re *requestError
	switch {
	case errors.As(err, &re):
		return re.status, re.msg
	case eris.Is(err, ingest.ErrTooManyRows):
		return http.StatusRequestEntityTooLarge, err.Error()
	case eris.Is(err, staging.ErrMissingStagingID):
		return http.StatusBadRequest, "stagingId is required for confirm"
	case eris.Is(err, staging.ErrBatchNotFound):
		return http.StatusNotFound, "staging batch not found"
	}
	zap.L().Error("api: request failed",
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	return http.StatusInternalServerError, err.Error()
}

// form is the union of fields accepted by the import and upload endpoints,
// whether sent as multipart, urlencoded or JSON.
type form struct {
	Org            string
	Filename       string
	Data           []byte
	HasFile        bool
	Rows           string
	Mapping        string
	SkipDuplicates string
	Action         string
	StagingID      string
}

type jsonForm struct {
	Org            string          `json:"org"`
	File           *string         `json:"file"`
	Filename       string          `json:"filename"`
	Rows           json.RawMessage `json:"rows"`
	Mapping        json.RawMessage `json:"mapping"`
	SkipDuplicates json.RawMessage `json:"skipDuplicates"`
	Action         string          `json:"action"`
	StagingID      string          `json:"stagingId"`
}

func (s *Server) readForm(w http.ResponseWriter, r *http.Request) (*form, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
			return nil, bodyError(err)
		}
		return readMultipart(r)
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, bodyError(err)
		}
		return readValues(r), nil
	default:
		return readJSON(r)
	}
}

func readMultipart(r *http.Request) (*form, error) {
	f := readValues(r)
	file, hdr, err := r.FormFile("file")
	switch {
	case err == nil:
		defer file.Close() //nolint:errcheck
		data, err := io.ReadAll(file)
		if err != nil {
			return nil, bodyError(err)
		}
		f.Data = data
		f.HasFile = true
		if f.Filename == "" {
			f.Filename = hdr.Filename
		}
	case errors.Is(err, http.ErrMissingFile):
	default:
		return nil, bodyError(err)
	}
	return f, nil
}

// readValues reads plain form fields. A text field named file is taken as
// the raw file contents.
func readValues(r *http.Request) *form {
	f := &form{
		Org:            strings.TrimSpace(r.FormValue("org")),
		Filename:       r.FormValue("filename"),
		Rows:           r.FormValue("rows"),
		Mapping:        r.FormValue("mapping"),
		SkipDuplicates: r.FormValue("skipDuplicates"),
		Action:         r.FormValue("action"),
		StagingID:      strings.TrimSpace(r.FormValue("stagingId")),
	}
	if _, ok := r.Form["file"]; ok {
		f.Data = []byte(r.FormValue("file"))
		f.HasFile = true
	}
	return f
}

func readJSON(r *http.Request) (*form, error) {
	var body jsonForm
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			return &form{}, nil
		}
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, bodyError(err)
		}
		return nil, badRequest("invalid JSON body")
	}

	f := &form{
		Org:            strings.TrimSpace(body.Org),
		Filename:       body.Filename,
		Rows:           rawOrEmpty(body.Rows),
		Mapping:        unquote(body.Mapping),
		SkipDuplicates: unquote(body.SkipDuplicates),
		Action:         body.Action,
		StagingID:      strings.TrimSpace(body.StagingID),
	}
	if body.File != nil {
		f.Data = []byte(*body.File)
		f.HasFile = true
	}
	return f, nil
}

func bodyError(err error) error {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		return &requestError{status: http.StatusRequestEntityTooLarge, msg: "upload exceeds size limit"}
	}
	return badRequest("invalid request body")
}

func rawOrEmpty(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	return string(raw)
}

// unquote returns a JSON string's contents, or the raw text for any other
// JSON value.
func unquote(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return rawOrEmpty(raw)
}

// skipDuplicates defaults to true; only "0" and "false" disable it.
func skipDuplicates(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "0", "false":
		return false
	default:
		return true
	}
}

func parseMapping(raw string) (map[string]model.CanonicalField, error) {
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, badRequest("invalid mapping JSON")
	}
	out := make(map[string]model.CanonicalField, len(m))
	for col, field := range m {
		out[col] = model.CanonicalField(strings.TrimSpace(field))
	}
	return out, nil
}

// parseRows decodes pre-mapped rows. Non-string values are kept in their
// JSON text form so numbers such as claim amounts survive.
func parseRows(raw string) ([]ingest.Row, error) {
	var records []map[string]any
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, badRequest("invalid rows JSON")
	}
	rows := make([]ingest.Row, len(records))
	for i, rec := range records {
		row := make(ingest.Row, len(rec))
		for k, v := range rec {
			row[k] = stringify(v)
		}
		rows[i] = row
	}
	return rows, nil
}

func stringify(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// batchRows resolves the rows of a request and the options they are
// resolved with: pre-mapped rows take precedence over a file.
func (s *Server) batchRows(r *http.Request, f *form) ([]ingest.Row, ingest.Options, error) {
	opts := ingest.Options{SkipDuplicates: skipDuplicates(f.SkipDuplicates)}
	if strings.TrimSpace(f.Mapping) != "" {
		m, err := parseMapping(f.Mapping)
		if err != nil {
			return nil, opts, err
		}
		opts.Mapping = m
	}

	switch {
	case strings.TrimSpace(f.Rows) != "":
		rows, err := parseRows(f.Rows)
		if err != nil {
			return nil, opts, err
		}
		opts.PreMapped = true
		return rows, opts, nil
	case f.HasFile:
		recs, err := fetcher.Parse(r.Context(), f.Filename, f.Data)
		if err != nil {
			return nil, opts, badRequest("could not parse file: " + eris.Cause(err).Error())
		}
		return ingest.RowsFrom(recs), opts, nil
	default:
		return nil, opts, badRequest("missing file")
	}
}
