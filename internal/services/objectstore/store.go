package objectstore

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/perlustro/perlustro/internal/interfaces"
	"github.com/perlustro/perlustro/internal/models"
)

// Store keeps uploaded files on the local filesystem and hands out
// time-limited signed read URLs served by the HTTP layer. The signing secret
// is generated per process, so URLs do not survive a restart; callers are
// expected to re-resolve rather than persist them.
type Store struct {
	root    string
	baseURL string
	ttl     time.Duration
	secret  []byte
	logger  arbor.ILogger
}

var _ interfaces.ObjectStore = (*Store)(nil)

// NewStore creates the store rooted at root. baseURL is the externally
// reachable server address, e.g. "http://localhost:8085".
func NewStore(root, baseURL string, ttl time.Duration, logger arbor.ILogger) (*Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create object store root: %w", err)
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate signing secret: %w", err)
	}
	return &Store{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
		ttl:     ttl,
		secret:  secret,
		logger:  logger,
	}, nil
}

// Put stores the object under key, replacing any previous content.
func (s *Store) Put(ctx context.Context, key string, r io.Reader) (int64, error) {
	path, err := s.objectPath(key)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("failed to create object directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create object file: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, r)
	if err != nil {
		return n, fmt.Errorf("failed to write object: %w", err)
	}

	s.logger.Debug().Str("key", key).Int64("bytes", n).Msg("Object stored")
	return n, nil
}

// GetReadURL returns a signed URL for the object, valid for the store's TTL.
func (s *Store) GetReadURL(ctx context.Context, key string) (string, error) {
	if _, err := s.objectPath(key); err != nil {
		return "", err
	}
	exp := time.Now().Add(s.ttl).Unix()
	sig := s.sign(key, exp)
	return fmt.Sprintf("%s/api/objects/%s?exp=%d&sig=%s", s.baseURL, url.PathEscape(key), exp, sig), nil
}

// Open verifies a signed request and opens the object for reading.
func (s *Store) Open(ctx context.Context, key string, exp int64, sig string) (io.ReadCloser, error) {
	if time.Now().Unix() > exp {
		return nil, models.ErrNotFound
	}
	if !hmac.Equal([]byte(s.sign(key, exp)), []byte(sig)) {
		return nil, models.ErrNotFound
	}
	path, err := s.objectPath(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

// ParseSignedQuery extracts the exp and sig parameters of a signed URL.
func ParseSignedQuery(values url.Values) (exp int64, sig string, err error) {
	exp, err = strconv.ParseInt(values.Get("exp"), 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid exp parameter: %w", err)
	}
	return exp, values.Get("sig"), nil
}

func (s *Store) sign(key string, exp int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s:%d", key, exp)
	return hex.EncodeToString(mac.Sum(nil))
}

// objectPath maps a key onto the root, rejecting traversal outside it.
func (s *Store) objectPath(key string) (string, error) {
	if key == "" {
		return "", &models.ValidationError{Field: "key", Reason: "must not be empty"}
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", &models.ValidationError{Field: "key", Reason: "must stay inside the store"}
	}
	return filepath.Join(s.root, clean), nil
}
