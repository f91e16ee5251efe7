package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/perlustro/perlustro/internal/models"
	"github.com/perlustro/perlustro/internal/services/objectstore"
)

// fileServer serves canned file bytes and doubles as the object store: read
// URLs resolve straight to the test server.
type fileServer struct {
	srv   *httptest.Server
	files map[string][]byte
}

func newFileServer(t *testing.T) *fileServer {
	fs := &fileServer{files: make(map[string][]byte)}
	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := fs.files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(data)
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fileServer) GetReadURL(ctx context.Context, key string) (string, error) {
	return fs.srv.URL + "/" + key, nil
}

func newTestService(t *testing.T, fs *fileServer) *Service {
	t.Helper()
	logger := arbor.NewLogger()
	return NewService(fs, objectstore.NewDownloader(0, logger), logger)
}

func buildZip(t *testing.T, parts map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range parts {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestExtractTextInput(t *testing.T) {
	s := newTestService(t, newFileServer(t))

	src := models.NewDataSource("s1", models.SourceTypeTextInput)
	src.Content = "pasted pitch notes"

	text, err := s.Extract(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, "pasted pitch notes", text)
}

func TestExtractTextInputEmpty(t *testing.T) {
	s := newTestService(t, newFileServer(t))

	src := models.NewDataSource("s1", models.SourceTypeTextInput)
	src.Content = "   "

	_, err := s.Extract(context.Background(), src)
	assert.ErrorIs(t, err, models.ErrMissingContent)
}

func TestExtractURLUnsupported(t *testing.T) {
	s := newTestService(t, newFileServer(t))

	src := models.NewDataSource("s1", models.SourceTypeURL)
	src.SourceURL = "https://example.com"

	_, err := s.Extract(context.Background(), src)
	assert.ErrorIs(t, err, models.ErrUnsupportedSource)
}

func TestExtractPlainTextFile(t *testing.T) {
	fs := newFileServer(t)
	fs.files["/notes.txt"] = []byte("plain text body")
	s := newTestService(t, fs)

	src := models.NewDataSource("s1", models.SourceTypeFileUpload)
	src.FileName = "notes.txt"
	src.SourceURL = "notes.txt"

	text, err := s.Extract(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, "plain text body", text)
}

func TestExtractDocx(t *testing.T) {
	document := `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second </w:t></w:r><w:r><w:t>paragraph.</w:t></w:r></w:p>
  </w:body>
</w:document>`
	fs := newFileServer(t)
	fs.files["/deck.docx"] = buildZip(t, map[string]string{"word/document.xml": document})
	s := newTestService(t, fs)

	src := models.NewDataSource("s1", models.SourceTypeFileUpload)
	src.FileName = "deck.docx"
	src.SourceURL = "deck.docx"

	text, err := s.Extract(context.Background(), src)
	require.NoError(t, err)
	assert.Contains(t, text, "First paragraph.")
	assert.Contains(t, text, "Second paragraph.")
}

func TestExtractPptx(t *testing.T) {
	fs := newFileServer(t)
	fs.files["/deck.pptx"] = buildZip(t, map[string]string{
		"ppt/slides/slide2.xml": "<p:sld xmlns:p=\"x\" xmlns:a=\"y\"><a:p><a:r><a:t>Market size</a:t></a:r></a:p></p:sld>",
		"ppt/slides/slide1.xml": "<p:sld xmlns:p=\"x\" xmlns:a=\"y\"><a:p><a:r><a:t>Our vision</a:t></a:r></a:p></p:sld>",
	})
	s := newTestService(t, fs)

	src := models.NewDataSource("s1", models.SourceTypeFileUpload)
	src.FileName = "deck.pptx"
	src.SourceURL = "deck.pptx"

	text, err := s.Extract(context.Background(), src)
	require.NoError(t, err)
	assert.Contains(t, text, "Slide 1: Our vision")
	assert.Contains(t, text, "Slide 2: Market size")
	// slides come back in slide order
	assert.Less(t, bytes.Index([]byte(text), []byte("Slide 1")), bytes.Index([]byte(text), []byte("Slide 2")))
}

func TestExtractPptxFallsBackToPlaceholder(t *testing.T) {
	fs := newFileServer(t)
	fs.files["/broken.pptx"] = []byte("not a zip archive at all")
	s := newTestService(t, fs)

	src := models.NewDataSource("s1", models.SourceTypeFileUpload)
	src.FileName = "broken.pptx"
	src.SourceURL = "broken.pptx"

	text, err := s.Extract(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, pptxPlaceholder, text)
}

func TestExtractFileDownloadFailure(t *testing.T) {
	fs := newFileServer(t)
	s := newTestService(t, fs)

	src := models.NewDataSource("s1", models.SourceTypeFileUpload)
	src.FileName = "missing.txt"
	src.SourceURL = "missing.txt"

	_, err := s.Extract(context.Background(), src)
	assert.ErrorContains(t, err, "failed to download")
}
