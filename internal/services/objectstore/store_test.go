package objectstore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/perlustro/perlustro/internal/models"
)

func newTestStore(t *testing.T, ttl time.Duration) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), "http://localhost:8085", ttl, arbor.NewLogger())
	require.NoError(t, err)
	return s
}

func TestPutAndOpenRoundTrip(t *testing.T) {
	s := newTestStore(t, time.Minute)
	ctx := context.Background()

	n, err := s.Put(ctx, "uploads/deck.pdf", strings.NewReader("pdf bytes"))
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)

	rawURL, err := s.GetReadURL(ctx, "uploads/deck.pdf")
	require.NoError(t, err)

	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	exp, sig, err := ParseSignedQuery(u.Query())
	require.NoError(t, err)

	rc, err := s.Open(ctx, "uploads/deck.pdf", exp, sig)
	require.NoError(t, err)
	defer rc.Close()

	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "pdf bytes", string(body))
}

func TestOpenRejectsBadSignature(t *testing.T) {
	s := newTestStore(t, time.Minute)
	ctx := context.Background()

	_, err := s.Put(ctx, "deck.pdf", strings.NewReader("x"))
	require.NoError(t, err)

	exp := time.Now().Add(time.Minute).Unix()
	_, err = s.Open(ctx, "deck.pdf", exp, "deadbeef")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestOpenRejectsExpiredURL(t *testing.T) {
	s := newTestStore(t, time.Minute)
	ctx := context.Background()

	_, err := s.Put(ctx, "deck.pdf", strings.NewReader("x"))
	require.NoError(t, err)

	exp := time.Now().Add(-time.Second).Unix()
	_, err = s.Open(ctx, "deck.pdf", exp, s.sign("deck.pdf", exp))
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestObjectPathRejectsTraversal(t *testing.T) {
	s := newTestStore(t, time.Minute)
	ctx := context.Background()

	_, err := s.Put(ctx, "../escape.txt", strings.NewReader("x"))
	assert.Error(t, err)

	_, err = s.GetReadURL(ctx, "/etc/passwd")
	assert.Error(t, err)
}

func TestDownloaderEnforcesSizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("a", 100)))
	}))
	defer srv.Close()

	d := NewDownloader(50, arbor.NewLogger())
	_, err := d.Download(context.Background(), srv.URL)
	assert.ErrorContains(t, err, "size limit")

	d = NewDownloader(200, arbor.NewLogger())
	body, err := d.Download(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, body, 100)
}
