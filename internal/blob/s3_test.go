package blob

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notekeeper-zipjobs/internal/common"
	"notekeeper-zipjobs/internal/config"
)

func TestIsNotFound(t *testing.T) {
	assert.False(t, isNotFound(nil))
	assert.True(t, isNotFound(&types.NoSuchKey{}))
	assert.True(t, isNotFound(&types.NotFound{}))
	assert.True(t, isNotFound(&smithy.GenericAPIError{Code: "NotFound"}))
	assert.False(t, isNotFound(&smithy.GenericAPIError{Code: "SlowDown"}))
	assert.False(t, isNotFound(errors.New("dial tcp: timeout")))
}

func TestMapS3Error(t *testing.T) {
	assert.ErrorIs(t, mapS3Error("get", &types.NoSuchKey{}), common.ErrNotFound)
	err := mapS3Error("get", &smithy.GenericAPIError{Code: "SlowDown"})
	assert.ErrorIs(t, err, common.ErrUnavailable)
	assert.NotErrorIs(t, err, common.ErrNotFound)
}

func TestS3StoreExistsAgainstFakeEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if strings.HasSuffix(r.URL.Path, "/present.zip") {
			w.Header().Set("Content-Type", "application/zip")
			w.Header().Set("Content-Length", "3")
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	s, err := NewS3Store(context.Background(), config.Config{
		S3Bucket:    "results",
		S3Region:    "us-east-1",
		S3Endpoint:  srv.URL,
		S3AccessKey: "test",
		S3SecretKey: "test",
		S3PathStyle: true,
	})
	require.NoError(t, err)

	ok, err := s.Exists(context.Background(), "e-zip/present.zip")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Exists(context.Background(), "e-zip/missing.zip")
	require.NoError(t, err)
	assert.False(t, ok)

	deleted, err := s.Delete(context.Background(), "e-zip/missing.zip")
	require.NoError(t, err)
	assert.False(t, deleted)
}
