package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/perlustro/perlustro/internal/common"
	"github.com/perlustro/perlustro/internal/models"
	"github.com/perlustro/perlustro/internal/services/status"
	storage "github.com/perlustro/perlustro/internal/storage/badger"
)

type fakeEnqueuer struct {
	job *models.Job
	err error
}

func (f *fakeEnqueuer) EnqueueIngestion(ctx context.Context, startupID string) (*models.Job, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.job, nil
}

type fakeAggregator struct {
	view *status.View
	err  error
}

func (f *fakeAggregator) Status(ctx context.Context, startupID string) (*status.View, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.view, nil
}

type fakeRenderer struct {
	pdf []byte
	err error
}

func (f *fakeRenderer) Generate(ctx context.Context, startupID string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.pdf, nil
}

type fakePutter struct {
	keys []string
	data []byte
}

func (f *fakePutter) Put(ctx context.Context, key string, r io.Reader) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	f.keys = append(f.keys, key)
	f.data = data
	return int64(len(data)), nil
}

func newTestManager(t *testing.T) *storage.Manager {
	t.Helper()
	mgr, err := storage.NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

func seedStartup(t *testing.T, mgr *storage.Manager, name string) *models.Startup {
	t.Helper()
	startup := models.NewStartup(name, "seed", "")
	require.NoError(t, mgr.StartupStorage().SaveStartup(context.Background(), startup))
	return startup
}

func TestCreateStartup(t *testing.T) {
	mgr := newTestManager(t)
	h := NewStartupHandler(mgr, &fakeEnqueuer{}, &fakeAggregator{}, &fakeRenderer{}, arbor.NewLogger())

	body := `{"name":"Acme Robotics","description":"warehouse robots","website_url":"https://acme.example"}`
	req := httptest.NewRequest("POST", "/api/startups", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.CreateHandler(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.Startup
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Acme Robotics", created.Name)
	assert.Equal(t, models.StatusNotStarted, created.OverallStatus)

	stored, err := mgr.StartupStorage().GetStartup(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "warehouse robots", stored.Description)
}

func TestCreateStartupValidation(t *testing.T) {
	mgr := newTestManager(t)
	h := NewStartupHandler(mgr, &fakeEnqueuer{}, &fakeAggregator{}, &fakeRenderer{}, arbor.NewLogger())

	cases := []struct {
		name string
		body string
	}{
		{"missing name", `{"description":"x"}`},
		{"bad url", `{"name":"Acme","website_url":"not-a-url"}`},
		{"malformed json", `{"name":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/startups", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			h.CreateHandler(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestGetStartupNotFound(t *testing.T) {
	mgr := newTestManager(t)
	h := NewStartupHandler(mgr, &fakeEnqueuer{}, &fakeAggregator{}, &fakeRenderer{}, arbor.NewLogger())

	req := httptest.NewRequest("GET", "/api/startups/missing", nil)
	rec := httptest.NewRecorder()
	h.GetHandler(rec, req, "missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnalyzeStartup(t *testing.T) {
	mgr := newTestManager(t)
	startup := seedStartup(t, mgr, "Acme")
	job, err := models.NewJob(startup.ID, models.JobTypeIngestion, models.IngestionPayload{StartupID: startup.ID})
	require.NoError(t, err)
	h := NewStartupHandler(mgr, &fakeEnqueuer{job: job}, &fakeAggregator{}, &fakeRenderer{}, arbor.NewLogger())

	req := httptest.NewRequest("POST", "/api/startups/"+startup.ID+"/analyze", nil)
	rec := httptest.NewRecorder()
	h.AnalyzeHandler(rec, req, startup.ID)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, job.ID, resp["job_id"])
	assert.Equal(t, startup.ID, resp["startup_id"])
}

func TestAnalyzeStartupNoSources(t *testing.T) {
	mgr := newTestManager(t)
	startup := seedStartup(t, mgr, "Acme")
	h := NewStartupHandler(mgr, &fakeEnqueuer{err: models.ErrNoSources}, &fakeAggregator{}, &fakeRenderer{}, arbor.NewLogger())

	req := httptest.NewRequest("POST", "/api/startups/"+startup.ID+"/analyze", nil)
	rec := httptest.NewRecorder()
	h.AnalyzeHandler(rec, req, startup.ID)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStatusEndpoint(t *testing.T) {
	mgr := newTestManager(t)
	view := &status.View{StartupID: "s1", OverallStatus: models.StatusInProgress, OverallProgressPercent: 50}
	h := NewStartupHandler(mgr, &fakeEnqueuer{}, &fakeAggregator{view: view}, &fakeRenderer{}, arbor.NewLogger())

	req := httptest.NewRequest("GET", "/api/startups/s1/status", nil)
	rec := httptest.NewRecorder()
	h.StatusHandler(rec, req, "s1")

	require.Equal(t, http.StatusOK, rec.Code)
	var got status.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 50, got.OverallProgressPercent)
	assert.Equal(t, models.StatusInProgress, got.OverallStatus)
}

func TestReportEndpoint(t *testing.T) {
	mgr := newTestManager(t)
	h := NewStartupHandler(mgr, &fakeEnqueuer{}, &fakeAggregator{}, &fakeRenderer{pdf: []byte("%PDF-1.7 test")}, arbor.NewLogger())

	req := httptest.NewRequest("GET", "/api/startups/s1/report", nil)
	rec := httptest.NewRecorder()
	h.ReportHandler(rec, req, "s1")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))
}

func TestCreateTextSource(t *testing.T) {
	mgr := newTestManager(t)
	startup := seedStartup(t, mgr, "Acme")
	h := NewSourceHandler(mgr, &fakePutter{}, arbor.NewLogger())

	body := `{"type":"text_input","content":"pitch deck notes","file_name":"notes.txt"}`
	req := httptest.NewRequest("POST", "/api/startups/"+startup.ID+"/sources", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.CreateHandler(rec, req, startup.ID)

	require.Equal(t, http.StatusCreated, rec.Code)
	var source models.DataSource
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &source))
	assert.Equal(t, models.SourceTypeTextInput, source.Type)
	assert.Equal(t, models.StatusNotStarted, source.Status)

	sources, err := mgr.DataSourceStorage().ListDataSources(context.Background(), startup.ID, "")
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "pitch deck notes", sources[0].Content)
}

func TestCreateTextSourceBlankContent(t *testing.T) {
	mgr := newTestManager(t)
	startup := seedStartup(t, mgr, "Acme")
	h := NewSourceHandler(mgr, &fakePutter{}, arbor.NewLogger())

	body := `{"type":"text_input","content":"   "}`
	req := httptest.NewRequest("POST", "/api/startups/"+startup.ID+"/sources", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.CreateHandler(rec, req, startup.ID)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateSourceUnknownType(t *testing.T) {
	mgr := newTestManager(t)
	startup := seedStartup(t, mgr, "Acme")
	h := NewSourceHandler(mgr, &fakePutter{}, arbor.NewLogger())

	body := `{"type":"carrier_pigeon"}`
	req := httptest.NewRequest("POST", "/api/startups/"+startup.ID+"/sources", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.CreateHandler(rec, req, startup.ID)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateSourceUnknownStartup(t *testing.T) {
	mgr := newTestManager(t)
	h := NewSourceHandler(mgr, &fakePutter{}, arbor.NewLogger())

	body := `{"type":"text_input","content":"x"}`
	req := httptest.NewRequest("POST", "/api/startups/missing/sources", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.CreateHandler(rec, req, "missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateUploadSource(t *testing.T) {
	mgr := newTestManager(t)
	startup := seedStartup(t, mgr, "Acme")
	putter := &fakePutter{}
	h := NewSourceHandler(mgr, putter, arbor.NewLogger())

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", "deck.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4 fake deck"))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req := httptest.NewRequest("POST", "/api/startups/"+startup.ID+"/sources", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	rec := httptest.NewRecorder()
	h.CreateHandler(rec, req, startup.ID)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, putter.keys, 1)
	assert.Contains(t, putter.keys[0], "startups/"+startup.ID+"/")
	assert.True(t, strings.HasSuffix(putter.keys[0], "_deck.pdf"))
	assert.Equal(t, []byte("%PDF-1.4 fake deck"), putter.data)

	var source models.DataSource
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &source))
	assert.Equal(t, models.SourceTypeFileUpload, source.Type)
	assert.Equal(t, "deck.pdf", source.FileName)
	assert.Equal(t, putter.keys[0], source.SourceURL)
}

func TestMethodNotAllowed(t *testing.T) {
	mgr := newTestManager(t)
	h := NewStartupHandler(mgr, &fakeEnqueuer{}, &fakeAggregator{}, &fakeRenderer{}, arbor.NewLogger())

	req := httptest.NewRequest("DELETE", "/api/startups", nil)
	rec := httptest.NewRecorder()
	h.CreateHandler(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
