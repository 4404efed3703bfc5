package cmd

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"tomodachi-cheki/internal/cache"
	"tomodachi-cheki/internal/repository"
	"tomodachi-cheki/internal/services"
	"tomodachi-cheki/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testServer struct {
	*httptest.Server
	clock *testClock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	tc := &testClock{now: time.Now()}
	clock := tc.Now

	photos := repository.NewMemoryPhotoRepository()
	objects := storage.NewMemoryStore("http://objects.local")
	urls := cache.NewSignedURLCache(cache.Options{Now: clock})
	hub := services.NewWSHub()

	a := &app{
		userService: services.NewUserService(repository.NewMemoryUserRepository(), "test-secret", time.Hour),
		photoService: services.NewPhotoService(photos, objects, urls, services.PhotoOptions{
			SignedURLTTL: time.Hour,
			Notifier:     hub,
			Now:          clock,
		}),
		memoService:    services.NewMemoService(repository.NewMemoryMemoRepository(), photos, clock),
		urlCache:       urls,
		hub:            hub,
		limiter:        newRateLimiter(1000, 1000),
		allowedOrigins: []string{"*"},
		maxUploadBytes: 1 << 20,
		objects:        objects,
	}

	a.userService.SetAdminEmails([]string{"admin@example.com"})

	srv := httptest.NewServer(newRouter(a))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, clock: tc}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return s.send(t, req)
}

func (s *testServer) send(t *testing.T, req *http.Request) (int, map[string]interface{}) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(data) > 0 {
		_ = json.Unmarshal(data, &out)
	}
	return resp.StatusCode, out
}

func (s *testServer) register(t *testing.T, email string) string {
	t.Helper()
	status, body := s.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": email, "password": "password123", "handleName": "Aki",
	})
	require.Equal(t, http.StatusCreated, status)
	return body["token"].(string)
}

func (s *testServer) upload(t *testing.T, token, deviceID string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	var pngBuf bytes.Buffer
	require.NoError(t, png.Encode(&pngBuf, img))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if deviceID != "" {
		require.NoError(t, mw.WriteField("device_id", deviceID))
	}
	fw, err := mw.CreateFormFile("file", "photo.png")
	require.NoError(t, err)
	_, err = fw.Write(pngBuf.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, s.URL+"/api/v1/photos", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	status, out := s.send(t, req)
	require.Equal(t, http.StatusCreated, status, out)
	return out["id"].(string)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, http.MethodGet, "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "aki@example.com")

	status, _ := s.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": "aki@example.com", "password": "password123", "handleName": "Aki",
	})
	assert.Equal(t, http.StatusConflict, status)

	status, body := s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "aki@example.com", "password": "password123",
	})
	assert.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, body["token"])

	status, _ = s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "aki@example.com", "password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body = s.do(t, http.MethodGet, "/api/v1/auth/me", token, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "aki@example.com", body["email"])
	assert.NotContains(t, body, "PasswordHash")

	status, _ = s.do(t, http.MethodGet, "/api/v1/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestGuestReceiveAndClaim(t *testing.T) {
	s := newTestServer(t)
	id := s.upload(t, "", "device-1")

	status, body := s.do(t, http.MethodGet, "/api/v1/photos/"+id, "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, strings.HasPrefix(body["imageUrl"].(string), "http://objects.local/device-1/"))
	assert.Nil(t, body["receiverName"])

	status, _ = s.do(t, http.MethodPost, "/api/v1/photos/"+id+"/receive", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = s.do(t, http.MethodPost, "/api/v1/photos/"+id+"/receive", "", map[string]interface{}{
		"receiverName": "Aki",
		"location":     map[string]float64{"latitude": 35.68, "longitude": 139.76},
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Aki", body["receiverName"])

	status, body = s.do(t, http.MethodPost, "/api/v1/photos/"+id+"/receive", "", map[string]string{"receiverName": "Bo"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "photo not found or already received", body["error"])

	status, body = s.do(t, http.MethodPost, "/api/v1/photos/missing/receive", "", map[string]string{"receiverName": "Bo"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "photo not found or already received", body["error"])

	status, _ = s.do(t, http.MethodPut, "/api/v1/photos/"+id+"/claim", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	aki := s.register(t, "aki@example.com")
	status, body = s.do(t, http.MethodPut, "/api/v1/photos/"+id+"/claim", aki, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, id, body["photo_id"])

	status, _ = s.do(t, http.MethodPut, "/api/v1/photos/"+id+"/claim", aki, nil)
	assert.Equal(t, http.StatusOK, status)

	bo := s.register(t, "bo@example.com")
	status, _ = s.do(t, http.MethodPut, "/api/v1/photos/"+id+"/claim", bo, nil)
	assert.Equal(t, http.StatusConflict, status)

	status, body = s.do(t, http.MethodGet, "/api/v1/photos", aki, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["total"])
}

func TestClaimStatusCodes(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "aki@example.com")
	id := s.upload(t, "", "device-1")

	status, _ := s.do(t, http.MethodPut, "/api/v1/photos/"+id+"/claim", token, nil)
	assert.Equal(t, http.StatusBadRequest, status, "not yet received")

	status, _ = s.do(t, http.MethodPut, "/api/v1/photos/missing/claim", token, nil)
	assert.Equal(t, http.StatusNotFound, status)

	s.clock.Advance(25 * time.Hour)
	status, _ = s.do(t, http.MethodPut, "/api/v1/photos/"+id+"/claim", token, nil)
	assert.Equal(t, http.StatusGone, status)

	status, _ = s.do(t, http.MethodGet, "/api/v1/photos/"+id, "", nil)
	assert.Equal(t, http.StatusGone, status)
}

func TestCompleteReportsAuthStatus(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "aki@example.com")

	guestID := s.upload(t, "", "device-1")
	status, body := s.do(t, http.MethodPost, "/api/v1/photos/"+guestID+"/complete", "", map[string]string{"receiverName": "Aki"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "guest", body["authenticationStatus"])

	userID := s.upload(t, "", "device-1")
	status, body = s.do(t, http.MethodPost, "/api/v1/photos/"+userID+"/complete", token, map[string]string{})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "authenticated", body["authenticationStatus"])
	assert.NotNil(t, body["receiverUserId"])

	other := s.register(t, "bo@example.com")
	status, _ = s.do(t, http.MethodPut, "/api/v1/photos/"+userID+"/claim", other, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestMemoAndReunion(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "aki@example.com")
	id := s.upload(t, token, "")
	base := "/api/v1/photos/" + id

	status, body := s.do(t, http.MethodGet, base+"/memo", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Nil(t, body["memo"])
	assert.Equal(t, false, body["is_reunited"])

	status, _ = s.do(t, http.MethodPut, base+"/memo", token, map[string]string{"memo": strings.Repeat("a", 201)})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = s.do(t, http.MethodPut, base+"/memo", token, map[string]string{"memo": "first meeting"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "first meeting", body["memo"])

	status, body = s.do(t, http.MethodPut, base+"/reunion", token, map[string]bool{"is_reunited": true})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["is_reunited"])

	status, body = s.do(t, http.MethodGet, base+"/reunion", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["is_reunited"])

	status, _ = s.do(t, http.MethodPut, base+"/reunion", token, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = s.do(t, http.MethodDelete, base+"/memo", token, nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = s.do(t, http.MethodDelete, base+"/memo", token, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = s.do(t, http.MethodPut, "/api/v1/photos/missing/memo", token, map[string]string{"memo": "x"})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAdminCache(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "admin@example.com")
	member := s.register(t, "aki@example.com")
	id := s.upload(t, "", "device-1")

	status, _ := s.do(t, http.MethodGet, "/api/v1/photos/"+id, "", nil)
	require.Equal(t, http.StatusOK, status)

	status, body := s.do(t, http.MethodGet, "/api/v1/admin/signed-url-cache", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["size"])
	assert.Equal(t, float64(1000), body["capacity"])

	status, _ = s.do(t, http.MethodDelete, "/api/v1/admin/signed-url-cache", token, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, body = s.do(t, http.MethodGet, "/api/v1/admin/signed-url-cache", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), body["size"])

	status, _ = s.do(t, http.MethodGet, "/api/v1/admin/signed-url-cache", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = s.do(t, http.MethodGet, "/api/v1/admin/signed-url-cache", member, nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = s.do(t, http.MethodDelete, "/api/v1/admin/signed-url-cache", member, nil)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestUploadValidation(t *testing.T) {
	s := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, s.URL+"/api/v1/photos", strings.NewReader("{}"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	status, _ := s.send(t, req)
	assert.Equal(t, http.StatusBadRequest, status)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "photo.png")
	require.NoError(t, err)
	_, err = fw.Write([]byte("not an image"))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("device_id", "device-1"))
	require.NoError(t, mw.Close())

	req, err = http.NewRequest(http.MethodPost, s.URL+"/api/v1/photos", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	status, _ = s.send(t, req)
	assert.Equal(t, http.StatusBadRequest, status)
}
