package imagegen

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/recaphq/recap-api/internal/config"
	"github.com/recaphq/recap-api/internal/generation"
	"github.com/recaphq/recap-api/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(config.ImageGenConfig{
		APIURL:         srv.URL + "/v1/",
		APIKey:         "secret",
		TimeoutSeconds: 5,
		MaxAttempts:    3,
	}, 5*time.Second, srv.Client(), logger.Discard())
	require.NoError(t, err)
	c.retryBase = time.Millisecond
	return c
}

func TestNewClientRequiresEndpoint(t *testing.T) {
	_, err := NewClient(config.ImageGenConfig{}, 0, nil, nil)
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)
}

func TestGenerate(t *testing.T) {
	key := uuid.New()
	var got generationRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/images/generations", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, key.String(), r.Header.Get("Idempotency-Key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = fmt.Fprint(w, `{"images":[{"url":"https://cdn.example/a.png"}]}`)
	}))
	defer srv.Close()

	url, err := newTestClient(t, srv).Generate(context.Background(), generation.ImageRequest{
		IdempotencyKey: key,
		Prompt:         "a cartoon gopher",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/a.png", url)

	assert.Equal(t, defaultModel, got.Model)
	assert.Equal(t, "1024x1024", got.ImageSize)
	assert.Equal(t, 20, got.InferenceSteps)
	assert.Equal(t, 7.5, got.GuidanceScale)
	assert.Equal(t, seedFor(generation.ImageRequest{IdempotencyKey: key}), got.Seed)
}

func TestGenerateRetriesNon2xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = fmt.Fprint(w, `{"images":[{"url":"https://cdn.example/b.png"}]}`)
	}))
	defer srv.Close()

	url, err := newTestClient(t, srv).Generate(context.Background(), generation.ImageRequest{
		IdempotencyKey: uuid.New(),
		Prompt:         "p",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/b.png", url)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGenerateFailures(t *testing.T) {
	tests := []struct {
		name      string
		handler   http.HandlerFunc
		want      error
		wantCalls int32
	}{
		{
			name:      "always failing",
			handler:   func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusInternalServerError) },
			want:      generation.ErrGenerationFailed,
			wantCalls: 3,
		},
		{
			name:      "missing url",
			handler:   func(w http.ResponseWriter, _ *http.Request) { _, _ = fmt.Fprint(w, `{"images":[]}`) },
			want:      generation.ErrInvalidResponse,
			wantCalls: 1,
		},
		{
			name:      "not json",
			handler:   func(w http.ResponseWriter, _ *http.Request) { _, _ = fmt.Fprint(w, `<html>`) },
			want:      generation.ErrInvalidResponse,
			wantCalls: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				tt.handler(w, r)
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv).Generate(context.Background(), generation.ImageRequest{
				IdempotencyKey: uuid.New(),
				Prompt:         "p",
			})
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestGenerateRejectsEmptyPrompt(t *testing.T) {
	c, err := NewClient(config.ImageGenConfig{APIURL: "http://unused", APIKey: "k"}, 0, nil, logger.Discard())
	require.NoError(t, err)
	_, err = c.Generate(context.Background(), generation.ImageRequest{Prompt: "  "})
	assert.ErrorIs(t, err, generation.ErrGenerationFailed)
}

func TestDownload(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("PNGDATA"))
	}))
	defer srv.Close()

	data, err := newTestClient(t, srv).Download(context.Background(), srv.URL+"/a.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("PNGDATA"), data)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDownloadGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := newTestClient(t, srv).Download(context.Background(), srv.URL+"/missing.png")
	assert.Error(t, err)
}
