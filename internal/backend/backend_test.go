package backend_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrimitra/advisor/internal/backend"
)

type stubDriver struct{ kind string }

func (d *stubDriver) Kind() string { return d.kind }
func (d *stubDriver) Bind(context.Context, string) (backend.Session, error) {
	return nil, errors.New("not implemented")
}

func TestRegistry_BuiltinDrivers(t *testing.T) {
	r := backend.NewRegistry()
	assert.Equal(t, []string{"gemini", "openai"}, r.Kinds())

	d, err := r.New("gemini", backend.Options{})
	require.NoError(t, err)
	assert.Equal(t, "gemini", d.Kind())
}

func TestRegistry_UnknownAndOverride(t *testing.T) {
	r := backend.NewRegistry()

	_, err := r.New("nonexistent", backend.Options{})
	assert.ErrorIs(t, err, backend.ErrUnknownDriver)

	r.Register("gemini", func(backend.Options) backend.Driver { return &stubDriver{kind: "custom"} })
	d, err := r.New("gemini", backend.Options{})
	require.NoError(t, err)
	assert.Equal(t, "custom", d.Kind())
}

func TestBind_EmptyCredential(t *testing.T) {
	ctx := context.Background()
	for _, d := range []backend.Driver{backend.NewGemini(backend.Options{}), backend.NewOpenAI(backend.Options{})} {
		_, err := d.Bind(ctx, "  ")
		assert.ErrorIs(t, err, backend.ErrEmptyCredential, d.Kind())
	}
}

func TestGemini_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("x-goog-api-key"))

		body, _ := io.ReadAll(r.Body)
		var req struct {
			Contents []struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
		}
		require.NoError(t, json.Unmarshal(body, &req))
		require.Len(t, req.Contents, 1)
		assert.Equal(t, "hello", req.Contents[0].Parts[0].Text)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Namaste"},{"text":" farmer"}]}}]}`))
	}))
	defer srv.Close()

	d := backend.NewGemini(backend.Options{Endpoint: srv.URL, Model: "gemini-test"})
	sess, err := d.Bind(context.Background(), "key-1")
	require.NoError(t, err)

	out, err := sess.Generate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "Namaste farmer", out)
}

func TestGemini_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"status":"RESOURCE_EXHAUSTED"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	sess, err := backend.NewGemini(backend.Options{Endpoint: srv.URL}).Bind(context.Background(), "k")
	require.NoError(t, err)

	_, err = sess.Generate(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
	assert.Contains(t, err.Error(), "RESOURCE_EXHAUSTED")
}

func TestGemini_EmptyAndBlocked(t *testing.T) {
	cases := map[string]string{
		"empty":   `{"candidates":[]}`,
		"blocked": `{"promptFeedback":{"blockReason":"SAFETY"}}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(payload))
			}))
			defer srv.Close()

			sess, err := backend.NewGemini(backend.Options{Endpoint: srv.URL}).Bind(context.Background(), "k")
			require.NoError(t, err)
			_, err = sess.Generate(context.Background(), "hi")
			assert.Error(t, err)
		})
	}
}

func TestOpenAI_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id":"c1","choices":[{"message":{"content":"Use drip irrigation."}}]}`))
	}))
	defer srv.Close()

	sess, err := backend.NewOpenAI(backend.Options{Endpoint: srv.URL}).Bind(context.Background(), "sk-test")
	require.NoError(t, err)

	out, err := sess.Generate(context.Background(), "water?")
	require.NoError(t, err)
	assert.Equal(t, "Use drip irrigation.", out)
}

func TestOpenAI_EmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	sess, err := backend.NewOpenAI(backend.Options{Endpoint: srv.URL}).Bind(context.Background(), "sk")
	require.NoError(t, err)
	_, err = sess.Generate(context.Background(), "x")
	assert.ErrorIs(t, err, backend.ErrEmptyResponse)
}
