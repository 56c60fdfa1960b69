package server

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/company-agent/internal/db"
)

type uploadBody struct {
	Message string   `json:"message"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors"`
	Error   string   `json:"error"`
}

func uploadRequest(t *testing.T, field, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload-csv/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func (e *testEnv) upload(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func TestHandleUploadCSV_Success(t *testing.T) {
	env := newTestEnv(t, Options{})
	csv := "name,description,sector,financials\n" +
		"Acme Corp,Makes things,Tech,\"{\"\"revenue\"\": \"\"$5M\"\"}\"\n" +
		"Beta Tech,,Tech,\n"

	w := env.upload(t, uploadRequest(t, "file", "companies.csv", csv))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody[uploadBody](t, w)
	assert.Equal(t, "Successfully imported 2 companies", body.Message)
	assert.Nil(t, body.Errors)
	assert.Contains(t, w.Body.String(), `"errors":null`)

	companies, err := env.store.ListCompanies(context.Background(), db.CompanyFilter{})
	require.NoError(t, err)
	require.Len(t, companies, 2)
	assert.Equal(t, "$5M", companies[0].Financials["revenue"])
}

func TestHandleUploadCSV_RowErrorsAndSkips(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.addCompany(t, "Acme Corp", "Tech")
	csv := "name,description,sector,financials\n" +
		"Acme Corp,dup,Tech,\n" +
		"Bad Co,,Tech,not-json\n" +
		"Good Co,,Retail,\n"

	w := env.upload(t, uploadRequest(t, "file", "COMPANIES.CSV", csv))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody[uploadBody](t, w)
	assert.Equal(t, "Successfully imported 1 companies", body.Message)
	assert.Equal(t, 1, body.Skipped)
	require.Len(t, body.Errors, 1)
	assert.True(t, strings.HasPrefix(body.Errors[0], "Row 2: invalid financials JSON"), body.Errors[0])
}

func TestHandleUploadCSV_NothingToImport(t *testing.T) {
	tests := []struct {
		name    string
		content string
		message string
		blank   int
	}{
		{"empty file", "", "Successfully imported 0 companies", 0},
		{"header only", "name,description,sector,financials\n", "Successfully imported 0 companies", 0},
		{"no name column", "title,sector\nA,Tech\nB,Retail\n", "Successfully imported 1 companies", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, Options{})

			w := env.upload(t, uploadRequest(t, "file", "companies.csv", tt.content))

			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.Equal(t, tt.message, decodeBody[uploadBody](t, w).Message)

			blank, err := env.store.FindCompaniesByName(context.Background(), "")
			require.NoError(t, err)
			assert.Len(t, blank, tt.blank)
		})
	}
}

func TestHandleUploadCSV_Rejections(t *testing.T) {
	env := newTestEnv(t, Options{MaxUploadBytes: 1 << 20})

	tests := []struct {
		name       string
		req        *http.Request
		wantStatus int
		wantErr    string
	}{
		{
			name:       "no file field",
			req:        uploadRequest(t, "other", "companies.csv", "name\nA\n"),
			wantStatus: http.StatusBadRequest,
			wantErr:    "No file provided",
		},
		{
			name:       "not multipart",
			req:        httptest.NewRequest(http.MethodPost, "/upload-csv/", strings.NewReader("name\nA\n")),
			wantStatus: http.StatusBadRequest,
			wantErr:    "No file provided",
		},
		{
			name:       "wrong extension",
			req:        uploadRequest(t, "file", "companies.xlsx", "name\nA\n"),
			wantStatus: http.StatusBadRequest,
			wantErr:    "File must be CSV format",
		},
		{
			name:       "not utf8",
			req:        uploadRequest(t, "file", "companies.csv", "name\n\xff\xfe\n"),
			wantStatus: http.StatusBadRequest,
			wantErr:    "Error processing CSV: file is not valid UTF-8",
		},
		{
			name:       "too large",
			req:        uploadRequest(t, "file", "companies.csv", "name\n"+strings.Repeat("A\n", 1<<20)),
			wantStatus: http.StatusRequestEntityTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.upload(t, tt.req)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, decodeBody[uploadBody](t, w).Error)
			}
		})
	}

	companies, err := env.store.ListCompanies(context.Background(), db.CompanyFilter{})
	require.NoError(t, err)
	assert.Empty(t, companies)
}
