package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"localvault/internal/apperr"
	"localvault/internal/config"
	"localvault/internal/session"
	"localvault/internal/vstore"
)

func setupTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := vstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("vstore.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	sessions := session.New(15 * time.Minute)
	cfg := config.Config{AppName: "test-vault", Host: "127.0.0.1", Port: "0", SessionIdleMinutes: 15}
	return New(cfg, store, sessions)
}

func doJSON(t *testing.T, srv *Server, method, path string, body any, cookies []*http.Cookie, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	return w
}

func cookiesFrom(w *httptest.ResponseRecorder) []*http.Cookie {
	return w.Result().Cookies()
}

func cookieNamed(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func unlockAndAuth(t *testing.T, srv *Server, password string) (sessionCookie, csrfCookie *http.Cookie) {
	t.Helper()
	w := doJSON(t, srv, http.MethodPost, "/vault/setup", map[string]string{"masterPassword": password}, nil, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("setup: status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, srv, http.MethodPost, "/vault/unlock", map[string]string{"masterPassword": password}, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("unlock: status = %d, body = %s", w.Code, w.Body.String())
	}
	cookies := cookiesFrom(w)
	sessionCookie = cookieNamed(cookies, sessionCookieName)
	csrfCookie = cookieNamed(cookies, csrfCookieName)
	if sessionCookie == nil || csrfCookie == nil {
		t.Fatalf("unlock did not set both auth cookies: %+v", cookies)
	}
	return sessionCookie, csrfCookie
}

// Scenario 1: setup -> status LOCKED -> unlock -> status UNLOCKED -> lock -> status LOCKED.
func TestVaultLifecycleScenario(t *testing.T) {
	srv := setupTestServer(t)
	password := "CorrectHorseBatteryStaple!"

	w := doJSON(t, srv, http.MethodGet, "/vault/status", nil, nil, nil)
	var status map[string]string
	mustUnmarshal(t, w.Body.Bytes(), &status)
	if status["status"] != "NO_VAULT" {
		t.Fatalf("initial status = %s, want NO_VAULT", status["status"])
	}

	w = doJSON(t, srv, http.MethodPost, "/vault/setup", map[string]string{"masterPassword": password}, nil, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("setup: status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, srv, http.MethodGet, "/vault/status", nil, nil, nil)
	mustUnmarshal(t, w.Body.Bytes(), &status)
	if status["status"] != "LOCKED" {
		t.Fatalf("status after setup = %s, want LOCKED", status["status"])
	}

	w = doJSON(t, srv, http.MethodPost, "/vault/unlock", map[string]string{"masterPassword": password}, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("unlock: status = %d, body = %s", w.Code, w.Body.String())
	}
	sessionCookie := cookieNamed(cookiesFrom(w), sessionCookieName)
	csrfCookie := cookieNamed(cookiesFrom(w), csrfCookieName)
	if sessionCookie == nil || csrfCookie == nil {
		t.Fatal("unlock did not set session_token and csrf_token cookies")
	}

	w = doJSON(t, srv, http.MethodGet, "/vault/status", nil, []*http.Cookie{sessionCookie}, nil)
	mustUnmarshal(t, w.Body.Bytes(), &status)
	if status["status"] != "UNLOCKED" {
		t.Fatalf("status after unlock = %s, want UNLOCKED", status["status"])
	}

	w = doJSON(t, srv, http.MethodPost, "/vault/lock", nil,
		[]*http.Cookie{sessionCookie, csrfCookie},
		map[string]string{csrfHeaderName: csrfCookie.Value})
	if w.Code != http.StatusNoContent {
		t.Fatalf("lock: status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, srv, http.MethodGet, "/vault/status", nil, nil, nil)
	mustUnmarshal(t, w.Body.Bytes(), &status)
	if status["status"] != "LOCKED" {
		t.Fatalf("status after lock = %s, want LOCKED", status["status"])
	}
}

// Scenario: double setup conflicts.
func TestVaultSetupConflict(t *testing.T) {
	srv := setupTestServer(t)
	password := "CorrectHorseBatteryStaple!"

	w := doJSON(t, srv, http.MethodPost, "/vault/setup", map[string]string{"masterPassword": password}, nil, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("first setup: status = %d", w.Code)
	}

	w = doJSON(t, srv, http.MethodPost, "/vault/setup", map[string]string{"masterPassword": password}, nil, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("second setup: status = %d, want 409", w.Code)
	}
	assertErrorCode(t, w, "VAULT_EXISTS")
}

// Scenario 2: wrong password throttling.
func TestUnlockThrottlesAfterFailures(t *testing.T) {
	srv := setupTestServer(t)
	password := "CorrectHorseBatteryStaple!"

	w := doJSON(t, srv, http.MethodPost, "/vault/setup", map[string]string{"masterPassword": password}, nil, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("setup: status = %d", w.Code)
	}

	w = doJSON(t, srv, http.MethodPost, "/vault/unlock", map[string]string{"masterPassword": "wrong-password-1"}, nil, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("first wrong attempt: status = %d, want 401", w.Code)
	}

	w = doJSON(t, srv, http.MethodPost, "/vault/unlock", map[string]string{"masterPassword": "wrong-password-2"}, nil, nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("immediate retry: status = %d, want 429", w.Code)
	}
	assertErrorCode(t, w, "RATE_LIMITED")

	w = doJSON(t, srv, http.MethodPost, "/vault/unlock", map[string]string{"masterPassword": password}, nil, nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("correct password while throttled: status = %d, want 429 (no verifier consulted)", w.Code)
	}
}

// Scenario 3 + 4: entry creation, ciphertext opacity, and CSRF gating.
func TestEntryCreateRequiresCSRFAndEncryptsAtRest(t *testing.T) {
	srv := setupTestServer(t)
	sessionCookie, csrfCookie := unlockAndAuth(t, srv, "CorrectHorseBatteryStaple!")

	entry := map[string]any{
		"title":    "Example Bank",
		"username": "alice@example.com",
		"password": "S3cur3!P4ss",
	}

	// Missing CSRF header entirely -> 403.
	w := doJSON(t, srv, http.MethodPost, "/entries", entry, []*http.Cookie{sessionCookie, csrfCookie}, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("create without CSRF header: status = %d, want 403", w.Code)
	}
	assertErrorCode(t, w, "CSRF_INVALID")

	// Mismatched header -> 403.
	w = doJSON(t, srv, http.MethodPost, "/entries", entry,
		[]*http.Cookie{sessionCookie, csrfCookie}, map[string]string{csrfHeaderName: "not-the-real-token"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("create with mismatched CSRF: status = %d, want 403", w.Code)
	}

	// No session cookie at all -> 401.
	w = doJSON(t, srv, http.MethodPost, "/entries", entry, nil, map[string]string{csrfHeaderName: csrfCookie.Value})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("create without session cookie: status = %d, want 401", w.Code)
	}

	// Matching cookie + header -> 201.
	w = doJSON(t, srv, http.MethodPost, "/entries", entry,
		[]*http.Cookie{sessionCookie, csrfCookie}, map[string]string{csrfHeaderName: csrfCookie.Value})
	if w.Code != http.StatusCreated {
		t.Fatalf("create with valid CSRF: status = %d, body = %s", w.Code, w.Body.String())
	}

	// The stored row holds only ciphertext, never the plaintext fields.
	var created map[string]any
	mustUnmarshal(t, w.Body.Bytes(), &created)
	id, _ := created["id"].(string)
	var rec *vstore.EntryRecord
	err := srv.store.WithTx(context.Background(), func(tx *sql.Tx) error {
		var err error
		rec, err = vstore.GetEntry(tx, id)
		return err
	})
	if err != nil {
		t.Fatalf("GetEntry(%q): %v", id, err)
	}
	if bytes.Contains(rec.Ciphertext, []byte("alice@example.com")) || bytes.Contains(rec.Ciphertext, []byte("S3cur3!P4ss")) {
		t.Fatal("raw stored ciphertext contains a plaintext entry field")
	}
}

// Scenario 5: export/preview/apply round trip.
func TestBackupExportPreviewApplyRoundTrip(t *testing.T) {
	srv := setupTestServer(t)
	sessionCookie, csrfCookie := unlockAndAuth(t, srv, "CorrectHorseBatteryStaple!")
	authHeaders := map[string]string{csrfHeaderName: csrfCookie.Value}
	authCookies := []*http.Cookie{sessionCookie, csrfCookie}

	entry := map[string]any{"title": "Example", "username": "bob", "password": "hunter2222"}
	w := doJSON(t, srv, http.MethodPost, "/entries", entry, authCookies, authHeaders)
	if w.Code != http.StatusCreated {
		t.Fatalf("create entry: status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, srv, http.MethodPost, "/backup/export", map[string]string{}, authCookies, authHeaders)
	if w.Code != http.StatusOK {
		t.Fatalf("export: status = %d, body = %s", w.Code, w.Body.String())
	}
	var envelope map[string]any
	mustUnmarshal(t, w.Body.Bytes(), &envelope)
	if envelope["kdfParams"] != nil || envelope["salt"] != nil {
		t.Fatalf("export without a password must have null kdfParams/salt: %+v", envelope)
	}
	exported := w.Body.Bytes()

	previewReq := multipartUploadRequest(t, "/backup/import/preview", exported, "")
	for _, c := range authCookies {
		previewReq.AddCookie(c)
	}
	for k, v := range authHeaders {
		previewReq.Header.Set(k, v)
	}
	w = httptest.NewRecorder()
	srv.router.ServeHTTP(w, previewReq)
	if w.Code != http.StatusOK {
		t.Fatalf("preview: status = %d, body = %s", w.Code, w.Body.String())
	}
	var preview map[string]any
	mustUnmarshal(t, w.Body.Bytes(), &preview)
	// The exported entry is still in the vault with the same id and
	// updatedAt, so it is classified as a skip, not an add.
	if int(preview["skipped"].(float64)) != 1 || int(preview["added"].(float64)) != 0 {
		t.Fatalf("preview of an entry already in the vault = %+v, want skipped=1 added=0", preview)
	}

	applyReq := multipartUploadRequest(t, "/backup/import/apply", exported, "")
	for _, c := range authCookies {
		applyReq.AddCookie(c)
	}
	for k, v := range authHeaders {
		applyReq.Header.Set(k, v)
	}
	w = httptest.NewRecorder()
	srv.router.ServeHTTP(w, applyReq)
	if w.Code != http.StatusOK {
		t.Fatalf("apply: status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, srv, http.MethodGet, "/entries", nil, authCookies, nil)
	var summaries []map[string]any
	mustUnmarshal(t, w.Body.Bytes(), &summaries)
	if len(summaries) != 1 {
		t.Fatalf("entry count after apply = %d, want 1 (the imported entry matches the original's id)", len(summaries))
	}
	for _, s := range summaries {
		if _, ok := s["password"]; ok {
			t.Fatal("entry summary leaked the password field")
		}
		if _, ok := s["notes"]; ok {
			t.Fatal("entry summary leaked the notes field")
		}
	}

	// Re-applying the identical bundle a second time must skip every entry.
	applyReq2 := multipartUploadRequest(t, "/backup/import/apply", exported, "")
	for _, c := range authCookies {
		applyReq2.AddCookie(c)
	}
	for k, v := range authHeaders {
		applyReq2.Header.Set(k, v)
	}
	w = httptest.NewRecorder()
	srv.router.ServeHTTP(w, applyReq2)
	if w.Code != http.StatusOK {
		t.Fatalf("second apply: status = %d, body = %s", w.Code, w.Body.String())
	}
	var second map[string]any
	mustUnmarshal(t, w.Body.Bytes(), &second)
	if int(second["added"].(float64)) != 0 || int(second["updated"].(float64)) != 0 {
		t.Fatalf("second apply of the same bundle = %+v, want added=0 updated=0", second)
	}
}

// Scenario 6: arbitrary bytes never produce a transport error.
func TestBackupPreviewFuzzNeverFails(t *testing.T) {
	srv := setupTestServer(t)
	sessionCookie, csrfCookie := unlockAndAuth(t, srv, "CorrectHorseBatteryStaple!")
	authCookies := []*http.Cookie{sessionCookie, csrfCookie}
	authHeaders := map[string]string{csrfHeaderName: csrfCookie.Value}

	blobs := [][]byte{
		nil,
		[]byte("not json"),
		[]byte(`{"version":1}`),
		bytes.Repeat([]byte{0xFF}, 64),
		[]byte(`{"version":1,"createdAt":"bad","kdfParams":null,"salt":"","export":{"nonce":"","ciphertext":""},"note":""}`),
	}
	for i, blob := range blobs {
		req := multipartUploadRequest(t, "/backup/import/preview", blob, "")
		for _, c := range authCookies {
			req.AddCookie(c)
		}
		for k, v := range authHeaders {
			req.Header.Set(k, v)
		}
		w := httptest.NewRecorder()
		srv.router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("blob %d: status = %d, want 200", i, w.Code)
		}
		var body map[string]any
		mustUnmarshal(t, w.Body.Bytes(), &body)
		if int(body["added"].(float64)) != 0 || int(body["updated"].(float64)) != 0 || int(body["skipped"].(float64)) != 0 {
			t.Fatalf("blob %d: counts = %+v, want all zero", i, body)
		}
		if _, ok := body["errors"]; !ok {
			t.Fatalf("blob %d: missing errors key in %+v", i, body)
		}
	}
}

func TestSecurityHeadersPresentOnEveryResponse(t *testing.T) {
	srv := setupTestServer(t)
	w := doJSON(t, srv, http.MethodGet, "/health", nil, nil, nil)
	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"Referrer-Policy":        "no-referrer",
		"Cache-Control":          "no-store",
	} {
		if got := w.Header().Get(header); got != want {
			t.Errorf("header %s = %q, want %q", header, got, want)
		}
	}
}

func multipartUploadRequest(t *testing.T, path string, fileContent []byte, password string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "backup.json")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write(fileContent); err != nil {
		t.Fatalf("write multipart file: %v", err)
	}
	if password != "" {
		if err := mw.WriteField("password", password); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func mustUnmarshal(t *testing.T, data []byte, out any) {
	t.Helper()
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
}

func assertErrorCode(t *testing.T, w *httptest.ResponseRecorder, code string) {
	t.Helper()
	var env apperr.Envelope
	mustUnmarshal(t, w.Body.Bytes(), &env)
	if env.Error.Code != code {
		t.Fatalf("error code = %s, want %s (body: %s)", env.Error.Code, code, w.Body.String())
	}
}
