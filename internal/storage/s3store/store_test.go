package s3store

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sebplorenz/DataspaceConnector/internal/storage"
)

var _ storage.ArtifactStore = (*Store)(nil)

// objectServer is a minimal path-style S3 endpoint
type objectServer struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (o *objectServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		o.objects[r.URL.Path] = data
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		data, ok := o.objects[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(data)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestStore(t *testing.T) (*Store, *objectServer) {
	t.Helper()
	backend := &objectServer{objects: make(map[string][]byte)}
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	client := s3.New(s3.Options{
		Region:                     "us-east-1",
		BaseEndpoint:               aws.String(srv.URL),
		UsePathStyle:               true,
		Credentials:                aws.AnonymousCredentials{},
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
		ResponseChecksumValidation: aws.ResponseChecksumValidationWhenRequired,
	})
	return NewStoreWithClient(client, "connector", "artifacts/"), backend
}

func TestStore_PutGet(t *testing.T) {
	s, backend := newTestStore(t)
	ctx := context.Background()

	artifact := "https://provider.example.org/artifacts/1"
	require.NoError(t, s.PutArtifactData(ctx, artifact, []byte("hello artifact")))

	data, err := s.GetArtifactData(ctx, artifact, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello artifact"), data)

	backend.mu.Lock()
	_, stored := backend.objects["/connector/"+s.key(artifact)]
	backend.mu.Unlock()
	assert.True(t, stored)
}

func TestStore_Missing(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.GetArtifactData(context.Background(), "https://provider.example.org/artifacts/none", nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_KeyIsStable(t *testing.T) {
	s := NewStoreWithClient(nil, "b", "p/")
	assert.Equal(t, s.key("x"), s.key("x"))
	assert.NotEqual(t, s.key("x"), s.key("y"))
	assert.Regexp(t, `^p/[0-9a-f]{64}\.blob$`, s.key("x"))
}
