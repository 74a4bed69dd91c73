package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-media/internal/apierr"
	"github.com/tendant/simple-media/internal/auth"
	"github.com/tendant/simple-media/internal/blob"
	"github.com/tendant/simple-media/internal/classify"
	"github.com/tendant/simple-media/internal/convert"
	"github.com/tendant/simple-media/internal/converters"
	"github.com/tendant/simple-media/internal/format"
	"github.com/tendant/simple-media/internal/img"
	"github.com/tendant/simple-media/internal/media"
	"github.com/tendant/simple-media/internal/metrics"
	"github.com/tendant/simple-media/internal/store"
	"github.com/tendant/simple-media/pkg/schema"
)

const (
	masterKey = "test-master-key"
	node      = "http://node-a:8080"
)

type noProber struct{}

func (noProber) Probe(context.Context, []byte) (*converters.ProbeResult, error) {
	return nil, errors.New("prober unavailable")
}

type testServer struct {
	*httptest.Server
	repo *store.Repository
}

func newTestServer(t *testing.T, mutate ...func(*media.Config)) *testServer {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open(store.Config{Type: "SQLITE", SQLitePath: filepath.Join(dir, "db.sqlite")})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	repo := store.New(db)
	require.NoError(t, repo.Migrate(context.Background()))
	blobs, err := blob.New(dir)
	require.NoError(t, err)

	cfg := media.Config{
		ServerAddress:  node,
		MaxFileSize:    1 << 20,
		MaxImageEdge:   4096,
		MaxImagePixels: 4096 * 4096,
		MaxOutputEdge:  2048,
	}
	for _, m := range mutate {
		m(&cfg)
	}

	m := metrics.New()
	codec := img.NewCodec(img.DefaultOptions())
	svc := media.New(cfg, media.Deps{
		Repo:       repo,
		Blobs:      blobs,
		Classifier: classify.New(codec, noProber{}),
		Converter:  convert.New(codec, nil, nil),
		Metrics:    m,
	})
	h := NewRouter(Options{
		Service:  svc,
		Resolver: auth.NewResolver(masterKey, repo, repo),
		Health:   repo,
		Metrics:  m,
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, repo: repo}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, body)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (ts *testServer) doJSON(t *testing.T, method, path, token string, v any) *http.Response {
	t.Helper()
	var body io.Reader
	if v != nil {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		body = bytes.NewReader(b)
	}
	return ts.do(t, method, path, token, body, "application/json")
}

func (ts *testServer) upload(t *testing.T, token string, data []byte, fields map[string]string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", "upload.png")
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return ts.do(t, http.MethodPost, "/api/v1/upload", token, &buf, mw.FormDataContentType())
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	m := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			m.Set(x, y, color.NRGBA{R: uint8(x * 2), G: uint8(y * 4), B: 64, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, m))
	return buf.Bytes()
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func requireEnvelope(t *testing.T, resp *http.Response, status int, code apierr.Code) {
	t.Helper()
	require.Equal(t, status, resp.StatusCode)
	env := decode[apierr.Envelope](t, resp)
	assert.Equal(t, code, env.ErrorCode, env.Error)
	assert.Equal(t, apierr.Version, env.Version)
}

func TestUploadDeliverDelete(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.upload(t, masterKey, pngBytes(t, 100, 50), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	desc := decode[schema.ArtifactDescriptor](t, resp)
	assert.Equal(t, "PNG", desc.ImageSourceFormat)
	assert.Equal(t, schema.Dimensions{Width: 100, Height: 50}, desc.ImageDimensions)

	resp = ts.do(t, http.MethodGet, "/cdn/"+desc.ID+".webp?width=50", "", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/webp", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Cache-Control"), "immutable")
	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	m, err := img.NewCodec(img.Options{}).Decode(data, format.WebP)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 50, 50), m.Bounds())

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/cdn/"+desc.ID+".webp?width=50", nil)
	require.NoError(t, err)
	req.Header.Set("If-None-Match", etag)
	notModified, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	notModified.Body.Close()
	assert.Equal(t, http.StatusNotModified, notModified.StatusCode)

	resp = ts.doJSON(t, http.MethodDelete, "/api/v1/images", masterKey, schema.DeleteRequest{UUID: desc.ID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[schema.DeleteResponse](t, resp).Success)

	resp = ts.do(t, http.MethodGet, "/cdn/"+desc.ID+".webp?width=50", "", nil, "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.True(t, strings.HasPrefix(string(body), "Sorry, simple-media cannot find the requested file."))
	assert.Contains(t, string(body), "simple-media v"+apierr.Version)
}

func TestUploadRejections(t *testing.T) {
	t.Run("not multipart", func(t *testing.T) {
		ts := newTestServer(t)
		resp := ts.do(t, http.MethodPost, "/api/v1/upload", masterKey, strings.NewReader("{}"), "application/json")
		requireEnvelope(t, resp, http.StatusUnsupportedMediaType, apierr.InvalidContentType)
	})
	t.Run("missing image", func(t *testing.T) {
		ts := newTestServer(t)
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("other", "x"))
		require.NoError(t, mw.Close())
		resp := ts.do(t, http.MethodPost, "/api/v1/upload", masterKey, &buf, mw.FormDataContentType())
		requireEnvelope(t, resp, http.StatusBadRequest, apierr.Unknown)
	})
	t.Run("too large", func(t *testing.T) {
		ts := newTestServer(t, func(c *media.Config) { c.MaxFileSize = 64 })
		resp := ts.upload(t, masterKey, pngBytes(t, 64, 64), nil)
		requireEnvelope(t, resp, http.StatusRequestEntityTooLarge, apierr.InvalidImageInput)
	})
	t.Run("invalid image", func(t *testing.T) {
		ts := newTestServer(t)
		resp := ts.upload(t, masterKey, []byte("definitely not an image"), nil)
		requireEnvelope(t, resp, http.StatusBadRequest, apierr.InvalidImageInput)
	})
	t.Run("auth required", func(t *testing.T) {
		ts := newTestServer(t, func(c *media.Config) { c.AuthRequired = true })
		resp := ts.upload(t, "", pngBytes(t, 4, 4), nil)
		requireEnvelope(t, resp, http.StatusUnauthorized, apierr.MissingAuthorization)
	})
	t.Run("unknown key", func(t *testing.T) {
		ts := newTestServer(t)
		resp := ts.upload(t, auth.KeyPrefix+"nope", pngBytes(t, 4, 4), nil)
		requireEnvelope(t, resp, http.StatusForbidden, apierr.InvalidAuthorization)
	})
}

func TestCDNErrors(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.upload(t, masterKey, pngBytes(t, 8, 8), map[string]string{"disableResizing": "true"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	desc := decode[schema.ArtifactDescriptor](t, resp)

	tests := []struct {
		name   string
		path   string
		status int
		banner string
	}{
		{"unsupported extension", "/cdn/" + desc.ID + ".tiff", http.StatusBadRequest, "resolve your required format yet"},
		{"bad width", "/cdn/" + desc.ID + ".png?width=abc", http.StatusBadRequest, "process the requested file"},
		{"unknown id", "/cdn/" + uuid.NewString() + ".png", http.StatusNotFound, "find the requested file"},
		{"resizing disabled", "/cdn/" + desc.ID + ".webp", http.StatusBadRequest, "process the requested file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.do(t, http.MethodGet, tt.path, "", nil, "")
			require.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
			body, _ := io.ReadAll(resp.Body)
			assert.Contains(t, string(body), tt.banner)
		})
	}

	resp = ts.do(t, http.MethodGet, "/cdn/"+desc.ID+".png", "", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCDNRedirectsToHomeNode(t *testing.T) {
	ts := newTestServer(t)
	a := &store.Artifact{
		ID: uuid.NewString(), HomeNode: "http://node-b:8080", Format: format.PNG,
		Width: 10, Height: 10, RevocationToken: auth.TokenPrefix + "foreign",
	}
	require.NoError(t, ts.repo.CreateArtifact(context.Background(), a))

	resp := ts.do(t, http.MethodGet, "/cdn/"+a.ID+".jpg?width=5", "", nil, "")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "http://node-b:8080/cdn/"+a.ID+".jpg?width=5", resp.Header.Get("Location"))
}

func TestKeysListAndDerive(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.doJSON(t, http.MethodPost, "/api/v1/keys", masterKey, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	key := decode[schema.KeyResponse](t, resp)
	require.True(t, strings.HasPrefix(key.Key, auth.KeyPrefix))

	resp = ts.upload(t, key.Key, pngBytes(t, 100, 50), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	desc := decode[schema.ArtifactDescriptor](t, resp)
	require.NotNil(t, desc.Owner)
	assert.Equal(t, key.UUID, *desc.Owner)

	width := 33
	resp = ts.doJSON(t, http.MethodPost, "/api/v1/resize-and-convert", key.Key,
		schema.DeriveRequest{UUID: desc.ID, TargetFormat: "webp", TargetWidth: &width})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	derived := decode[schema.ArtifactDescriptor](t, resp)
	assert.Equal(t, schema.Dimensions{Width: 33, Height: 17}, derived.ImageDimensions)

	resp = ts.do(t, http.MethodGet, "/api/v1/images?limit=1", key.Key, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decode[schema.ListResponse](t, resp)
	require.Len(t, page.Images, 1)
	assert.Equal(t, derived.ID, page.Images[0].ID)
	require.NotNil(t, page.NextCursor)

	resp = ts.do(t, http.MethodGet, "/api/v1/images?limit=1&cursor="+*page.NextCursor, key.Key, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page = decode[schema.ListResponse](t, resp)
	require.Len(t, page.Images, 1)
	assert.Equal(t, desc.ID, page.Images[0].ID)

	resp = ts.do(t, http.MethodGet, "/api/v1/images", desc.RevocationToken, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page = decode[schema.ListResponse](t, resp)
	require.Len(t, page.Images, 1)
	assert.Nil(t, page.NextCursor)

	resp = ts.doJSON(t, http.MethodPatch, "/api/v1/keys", key.Key, schema.KeyRequest{UUID: key.UUID})
	requireEnvelope(t, resp, http.StatusForbidden, apierr.InvalidAuthorization)

	resp = ts.doJSON(t, http.MethodDelete, "/api/v1/keys", masterKey, schema.KeyRequest{UUID: key.UUID, ContentRemoval: true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	revoked := decode[schema.KeyRevokedResponse](t, resp)
	assert.Equal(t, 2, revoked.RemovedArtifacts)

	resp = ts.do(t, http.MethodGet, "/cdn/"+desc.ID+".png", "", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = ts.do(t, http.MethodGet, "/api/v1/images", key.Key, nil, "")
	requireEnvelope(t, resp, http.StatusForbidden, apierr.InvalidAuthorization)
}

func TestDeleteWithWrongRevocationToken(t *testing.T) {
	ts := newTestServer(t)
	a := decode[schema.ArtifactDescriptor](t, ts.upload(t, "", pngBytes(t, 4, 4), nil))
	b := decode[schema.ArtifactDescriptor](t, ts.upload(t, "", pngBytes(t, 4, 4), nil))

	resp := ts.doJSON(t, http.MethodDelete, "/api/v1/images", a.RevocationToken, schema.DeleteRequest{UUID: b.ID})
	requireEnvelope(t, resp, http.StatusForbidden, apierr.InvalidAuthorization)

	resp = ts.doJSON(t, http.MethodDelete, "/api/v1/images", a.RevocationToken, schema.DeleteRequest{UUID: a.ID})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRequestValidation(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/api/v1/images?limit=abc", masterKey, nil, "")
	requireEnvelope(t, resp, http.StatusBadRequest, apierr.InvalidQuery)

	resp = ts.do(t, http.MethodGet, "/api/v1/images?limit=0", masterKey, nil, "")
	requireEnvelope(t, resp, http.StatusBadRequest, apierr.InvalidQuery)

	resp = ts.do(t, http.MethodGet, "/api/v1/images?cursor=yesterday", masterKey, nil, "")
	requireEnvelope(t, resp, http.StatusBadRequest, apierr.InvalidQuery)

	resp = ts.do(t, http.MethodGet, "/api/v1/images", "", nil, "")
	requireEnvelope(t, resp, http.StatusUnauthorized, apierr.MissingAuthorization)

	resp = ts.do(t, http.MethodPut, "/api/v1/images", masterKey, nil, "")
	requireEnvelope(t, resp, http.StatusMethodNotAllowed, apierr.MethodNotAllowed)

	resp = ts.do(t, http.MethodGet, "/api/v1/upload", masterKey, nil, "")
	requireEnvelope(t, resp, http.StatusMethodNotAllowed, apierr.MethodNotAllowed)

	resp = ts.do(t, http.MethodPost, "/api/v1/resize-and-convert", masterKey, strings.NewReader("{"), "application/json")
	requireEnvelope(t, resp, http.StatusBadRequest, apierr.Unknown)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/images", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	requireEnvelope(t, resp2, http.StatusForbidden, apierr.InvalidAuthorization)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/healthz", "", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", decode[map[string]string](t, resp)["status"])

	resp = ts.do(t, http.MethodGet, "/metrics", "", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "http_request_duration_seconds")
}
