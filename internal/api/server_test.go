package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/claimant-intake/internal/ingest"
	"github.com/sells-group/claimant-intake/internal/model"
	"github.com/sells-group/claimant-intake/internal/staging"
	"github.com/sells-group/claimant-intake/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestServer(t *testing.T) (http.Handler, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	orch := ingest.NewOrchestrator(st, nil, 5)
	srv := NewServer(st, orch, staging.NewWorkflow(st, orch), nil, Options{})
	return srv.Routes(), st
}

// multipartBody builds a multipart request body with an optional CSV file.
func multipartBody(t *testing.T, filename, content string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func do(t *testing.T, h http.Handler, method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	h, _ := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestImport_PartialFailure(t *testing.T) {
	h, st := newTestServer(t)
	csv := "name,email\nJane Doe,jane@x.com\n,nobody@x.com\nBob Stone,bob@x.com\n"
	body, ct := multipartBody(t, "claims.csv", csv, map[string]string{"org": "acme"})

	rec := do(t, h, http.MethodPost, "/import", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decode[ingest.Result](t, rec)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 2, res.Imported)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 2, res.Errors[0].Row)
	assert.Equal(t, "missing name", res.Errors[0].Error)
	assert.Empty(t, res.Duplicates)

	list, err := st.ListClaimants(context.Background(), "acme")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestImport_SameBatchDuplicate(t *testing.T) {
	h, _ := newTestServer(t)
	csv := "Full Name,Email Address\nJane Doe,jane@x.com\nJane Doe,JANE@x.com\n"
	body, ct := multipartBody(t, "claims.csv", csv, nil)

	rec := do(t, h, http.MethodPost, "/import", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decode[ingest.Result](t, rec)
	assert.Equal(t, 1, res.Imported)
	require.Len(t, res.Duplicates, 1)
	assert.Equal(t, 2, res.Duplicates[0].Row)
	assert.Equal(t, model.ReasonEmail, res.Duplicates[0].Reason)
	assert.NotEmpty(t, res.Duplicates[0].ClaimantID)
	assert.InDelta(t, 0.95, res.Duplicates[0].Score, 0.001)
}

func TestImport_SkipDuplicatesDisabled(t *testing.T) {
	h, st := newTestServer(t)
	csv := "name,email\nJane Doe,jane@x.com\nJane Doe,jane@x.com\n"
	body, ct := multipartBody(t, "claims.csv", csv, map[string]string{"skipDuplicates": "false"})

	rec := do(t, h, http.MethodPost, "/import", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[ingest.Result](t, rec)
	assert.Equal(t, 2, res.Imported)

	list, err := st.ListClaimants(context.Background(), "demo")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestImport_ExplicitMapping(t *testing.T) {
	h, st := newTestServer(t)
	csv := "Claimant Full,Contact,Notes\nJane Doe,jane@x.com,call back\n"
	body, ct := multipartBody(t, "claims.csv", csv, map[string]string{
		"mapping": `{"Claimant Full":"name","Contact":"email","Notes":"ignore"}`,
	})

	rec := do(t, h, http.MethodPost, "/import", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decode[ingest.Result](t, rec).Imported)

	list, err := st.ListClaimants(context.Background(), "demo")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "jane@x.com", list[0].Email)
}

func TestImport_JSONRows(t *testing.T) {
	h, st := newTestServer(t)
	body := bytes.NewBufferString(`{"org":"acme","rows":[{"name":"Jane Doe","claimAmount":1250.5,"claimId":"C-1"},{"name":"  "}]}`)

	rec := do(t, h, http.MethodPost, "/import", body, "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decode[ingest.Result](t, rec)
	assert.Equal(t, 1, res.Imported)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "missing name", res.Errors[0].Error)

	list, err := st.ListClaimants(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].ClaimAmount)
	assert.InDelta(t, 1250.5, *list[0].ClaimAmount, 0.001)
}

func TestImport_InputErrors(t *testing.T) {
	h, _ := newTestServer(t)

	tests := []struct {
		name   string
		body   func() (*bytes.Buffer, string)
		status int
		msg    string
	}{
		{
			name: "malformed rows",
			body: func() (*bytes.Buffer, string) {
				return multipartBody(t, "", "", map[string]string{"rows": "[{oops"})
			},
			status: http.StatusBadRequest,
			msg:    "invalid rows JSON",
		},
		{
			name: "missing file",
			body: func() (*bytes.Buffer, string) {
				return multipartBody(t, "", "", map[string]string{"org": "demo"})
			},
			status: http.StatusBadRequest,
			msg:    "missing file",
		},
		{
			name: "malformed mapping",
			body: func() (*bytes.Buffer, string) {
				return multipartBody(t, "a.csv", "name\nJane\n", map[string]string{"mapping": "nope"})
			},
			status: http.StatusBadRequest,
			msg:    "invalid mapping JSON",
		},
		{
			name: "malformed JSON body",
			body: func() (*bytes.Buffer, string) {
				return bytes.NewBufferString("{"), "application/json"
			},
			status: http.StatusBadRequest,
			msg:    "invalid JSON body",
		},
		{
			name: "too many rows",
			body: func() (*bytes.Buffer, string) {
				return multipartBody(t, "a.csv", "name\nA\nB\nC\nD\nE\nF\n", nil)
			},
			status: http.StatusRequestEntityTooLarge,
			msg:    "too many rows",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := tt.body()
			rec := do(t, h, http.MethodPost, "/import", body, ct)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, decode[map[string]string](t, rec)["error"], tt.msg)
		})
	}
}

func TestImport_RowCapImportsNothing(t *testing.T) {
	h, st := newTestServer(t)
	body, ct := multipartBody(t, "a.csv", "name\nA\nB\nC\nD\nE\nF\n", nil)

	rec := do(t, h, http.MethodPost, "/import", body, ct)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	list, err := st.ListClaimants(context.Background(), "demo")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUpload_PreviewStageConfirm(t *testing.T) {
	h, st := newTestServer(t)
	ctx := context.Background()
	_, err := st.CreateClaimant(ctx, model.ClaimantPayload{Org: "demo", Name: "Jane Doe", ClaimID: "C-1"})
	require.NoError(t, err)

	csv := "name,claim id\nJane D.,C-1\nBob Stone,C-2\nBob Stone,\n"

	body, ct := multipartBody(t, "claims.csv", csv, map[string]string{"action": "preview"})
	rec := do(t, h, http.MethodPost, "/upload", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	preview := decode[uploadResponse](t, rec)
	assert.True(t, preview.Success)
	assert.Equal(t, 3, preview.Total)
	assert.Equal(t, 2, preview.Duplicates)
	assert.Equal(t, 1, preview.Fresh)
	assert.Empty(t, preview.StagingID)

	body, ct = multipartBody(t, "claims.csv", csv, map[string]string{"action": "import"})
	rec = do(t, h, http.MethodPost, "/upload", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	staged := decode[uploadResponse](t, rec)
	require.NotEmpty(t, staged.StagingID)
	assert.Equal(t, 2, staged.Duplicates)

	rec = do(t, h, http.MethodGet, "/upload/"+staged.StagingID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	batch := decode[model.StagingBatch](t, rec)
	assert.Equal(t, model.BatchStatusPending, batch.Status)

	body, ct = multipartBody(t, "", "", map[string]string{"action": "confirm", "stagingId": staged.StagingID})
	rec = do(t, h, http.MethodPost, "/upload", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	confirmed := decode[uploadResponse](t, rec)
	require.NotNil(t, confirmed.Imported)
	assert.Equal(t, 1, *confirmed.Imported)

	body, ct = multipartBody(t, "", "", map[string]string{"action": "confirm", "stagingId": staged.StagingID})
	rec = do(t, h, http.MethodPost, "/upload", body, ct)
	require.Equal(t, http.StatusOK, rec.Code)
	again := decode[uploadResponse](t, rec)
	require.NotNil(t, again.Imported)
	assert.Zero(t, *again.Imported)

	list, err := st.ListClaimants(ctx, "demo")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestUpload_Errors(t *testing.T) {
	h, _ := newTestServer(t)

	tests := []struct {
		name   string
		fields map[string]string
		file   string
		status int
		msg    string
	}{
		{"confirm without id", map[string]string{"action": "confirm"}, "", http.StatusBadRequest, "stagingId is required"},
		{"confirm unknown id", map[string]string{"action": "confirm", "stagingId": "nope"}, "", http.StatusNotFound, "not found"},
		{"unknown action", map[string]string{"action": "explode"}, "name\nA\n", http.StatusBadRequest, "unknown action"},
		{"missing action", nil, "name\nA\n", http.StatusBadRequest, "action is required"},
		{"preview without file", map[string]string{"action": "preview"}, "", http.StatusBadRequest, "missing file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filename := ""
			if tt.file != "" {
				filename = "a.csv"
			}
			body, ct := multipartBody(t, filename, tt.file, tt.fields)
			rec := do(t, h, http.MethodPost, "/upload", body, ct)
			assert.Equal(t, tt.status, rec.Code)
			resp := decode[uploadResponse](t, rec)
			assert.False(t, resp.Success)
			assert.Contains(t, resp.Error, tt.msg)
		})
	}
}

func TestUploadStatus_NotFound(t *testing.T) {
	h, _ := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/upload/missing", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInferHeaders(t *testing.T) {
	h, _ := newTestServer(t)
	body := bytes.NewBufferString(`{
		"headers": ["Email Address", "Full Name", "id"],
		"sampleRows": [
			{"Email Address": "a@x.com", "Full Name": "Jane Doe", "id": 12345},
			{"Email Address": "b@x.com", "Full Name": "Bob Stone", "id": "67890"}
		]
	}`)

	rec := do(t, h, http.MethodPost, "/headers/infer", body, "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[inferResponse](t, rec)
	email := resp.Results["Email Address"]
	require.NotNil(t, email.Top)
	assert.Equal(t, model.FieldEmail, email.Top.Target)
	assert.Greater(t, email.Top.Confidence, 0.8)
	assert.Equal(t, model.FieldName, resp.Mapping["Full Name"])

	id := resp.Results["id"]
	require.NotNil(t, id.Top)
	targets := []model.CanonicalField{id.Top.Target}
	for _, alt := range id.Alternatives {
		targets = append(targets, alt.Target)
	}
	assert.Contains(t, targets, model.FieldClaimID)
	assert.Contains(t, targets, model.FieldExternalID)
}

func TestInferHeaders_DerivesHeadersFromSamples(t *testing.T) {
	h, _ := newTestServer(t)
	body := bytes.NewBufferString(`{"sampleRows":[{"Email":"a@x.com"}]}`)

	rec := do(t, h, http.MethodPost, "/headers/infer", body, "application/json")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[inferResponse](t, rec)
	assert.Contains(t, resp.Results, "Email")
}

func TestInferHeaders_BadRequest(t *testing.T) {
	h, _ := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/headers/infer", bytes.NewBufferString(`{}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/headers/infer", bytes.NewBufferString(`[`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClaimants_ListGetDelete(t *testing.T) {
	h, st := newTestServer(t)
	c, err := st.CreateClaimant(context.Background(), model.ClaimantPayload{Org: "acme", Name: "Jane Doe"})
	require.NoError(t, err)

	rec := do(t, h, http.MethodGet, "/claimants?org=acme", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Org       string           `json:"org"`
		Claimants []model.Claimant `json:"claimants"`
	}](t, rec)
	assert.Equal(t, "acme", list.Org)
	require.Len(t, list.Claimants, 1)

	rec = do(t, h, http.MethodGet, "/claimants", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"claimants":[]`)

	rec = do(t, h, http.MethodGet, "/claimants/"+c.ID+"?org=acme", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Jane Doe", decode[model.Claimant](t, rec).Name)

	rec = do(t, h, http.MethodGet, "/claimants/"+c.ID, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodDelete, "/claimants/"+c.ID+"?org=acme", nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodDelete, "/claimants/"+c.ID+"?org=acme", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	h, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/headers/infer", nil)
	req.Header.Set("Origin", "https://mapper.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
}

func TestSkipDuplicatesFlag(t *testing.T) {
	for in, want := range map[string]bool{"": true, "1": true, "true": true, "0": false, "false": false, " FALSE ": false} {
		assert.Equal(t, want, skipDuplicates(in), "input %q", in)
	}
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "", stringify(nil))
	assert.Equal(t, "12345", stringify(float64(12345)))
	assert.Equal(t, "1250.5", stringify(1250.5))
	assert.Equal(t, "true", stringify(true))
	assert.Equal(t, `["a"]`, stringify([]any{"a"}))
	assert.True(t, strings.HasPrefix(stringify(map[string]any{"k": 1.0}), "{"))
}
