package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/audio-transcribe/backend/internal/api/middleware"
	"github.com/audio-transcribe/backend/internal/auth"
	"github.com/audio-transcribe/backend/internal/db"
	"github.com/audio-transcribe/backend/internal/db/models"
	"github.com/audio-transcribe/backend/internal/job"
	"github.com/audio-transcribe/backend/internal/pipeline"
	"github.com/audio-transcribe/backend/internal/storage"
	"github.com/audio-transcribe/backend/internal/transcribe"
)

type stubEngine string

func (e stubEngine) Name() string { return string(e) }
func (e stubEngine) Transcribe(context.Context, transcribe.Request) (string, error) {
	return "", nil
}

// fakeTranscriber returns a fixed outcome and records the last call.
type fakeTranscriber struct {
	outcome  pipeline.Outcome
	gotLang  string
	gotBytes int
	gotName  string
}

func (f *fakeTranscriber) Engine(name string) (transcribe.Engine, error) {
	switch name {
	case "", "whisper.cpp":
		return stubEngine("whisper.cpp"), nil
	case "openai":
		return stubEngine("openai"), nil
	}
	return nil, errors.New("unknown engine: " + name)
}

func (f *fakeTranscriber) Transcribe(_ context.Context, data []byte, filename, language string, engine transcribe.Engine, _ pipeline.ProgressFunc) pipeline.Outcome {
	f.gotLang = language
	f.gotBytes = len(data)
	f.gotName = filename
	return f.outcome
}

func (f *fakeTranscriber) Engines() []string     { return []string{"openai", "whisper.cpp"} }
func (f *fakeTranscriber) DefaultEngine() string { return "whisper.cpp" }
func (f *fakeTranscriber) Language(lang string) string {
	if lang != "" {
		return lang
	}
	return "ru"
}

func multipartBody(t *testing.T, fields map[string]string, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(data)
	}
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return body
}

func newTestQueue(t *testing.T) (*job.JobQueue, *db.Database) {
	t.Helper()
	database, err := db.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return job.NewJobQueue(database.DB()), database
}

func TestTranscribeStatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		outcome pipeline.Outcome
		want    int
	}{
		{"success", pipeline.Outcome{Success: true, Text: "a b", WordsCount: 2, Fragments: 1}, http.StatusOK},
		{"decode", pipeline.Outcome{Error: "bad audio", ErrorKind: "decode"}, http.StatusUnprocessableEntity},
		{"transcription", pipeline.Outcome{Error: "engine down", ErrorKind: "transcription"}, http.StatusBadGateway},
		{"persistence", pipeline.Outcome{Error: "disk full", ErrorKind: "persistence"}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeTranscriber{outcome: tt.outcome}
			h := NewTranscribeHandler(svc, nil, nil, 1<<20)

			body, ct := multipartBody(t, map[string]string{"language": "en"}, "call.mp3", []byte("audio"))
			req := httptest.NewRequest(http.MethodPost, "/transcribe/", body)
			req.Header.Set("Content-Type", ct)
			rec := httptest.NewRecorder()
			h.Transcribe(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("code = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
			resp := decodeBody(t, rec)
			if resp["success"] != tt.outcome.Success {
				t.Errorf("success = %v", resp["success"])
			}
			if !tt.outcome.Success && resp["error_kind"] != tt.outcome.ErrorKind {
				t.Errorf("error_kind = %v, want %s", resp["error_kind"], tt.outcome.ErrorKind)
			}
			if svc.gotLang != "en" || svc.gotBytes != 5 || svc.gotName != "call.mp3" {
				t.Errorf("service got lang=%q bytes=%d name=%q", svc.gotLang, svc.gotBytes, svc.gotName)
			}
		})
	}
}

func TestTranscribeSuccessBody(t *testing.T) {
	svc := &fakeTranscriber{outcome: pipeline.Outcome{Success: true, Text: "hello world", WordsCount: 2, Fragments: 1}}
	h := NewTranscribeHandler(svc, nil, nil, 1<<20)

	body, ct := multipartBody(t, nil, "a.wav", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/transcribe/", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.Transcribe(rec, req)

	resp := decodeBody(t, rec)
	for _, key := range []string{"text", "words_count", "transcription_duration", "service_duration", "total_duration"} {
		if _, ok := resp[key]; !ok {
			t.Errorf("missing %q in %s", key, rec.Body.String())
		}
	}
	if resp["text"] != "hello world" || resp["words_count"] != float64(2) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestTranscribeRequestErrors(t *testing.T) {
	tests := []struct {
		name     string
		fields   map[string]string
		filename string
		size     int
		want     int
	}{
		{"missing file", nil, "", 0, http.StatusBadRequest},
		{"unknown engine", map[string]string{"engine": "bogus"}, "a.wav", 10, http.StatusBadRequest},
		{"too large", nil, "a.wav", 4096, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeTranscriber{}
			h := NewTranscribeHandler(svc, nil, nil, 1024)

			body, ct := multipartBody(t, tt.fields, tt.filename, bytes.Repeat([]byte{1}, tt.size))
			req := httptest.NewRequest(http.MethodPost, "/transcribe/", body)
			req.Header.Set("Content-Type", ct)
			rec := httptest.NewRecorder()
			h.Transcribe(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("code = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
			resp := decodeBody(t, rec)
			if resp["success"] != false || resp["error_kind"] != "request" {
				t.Errorf("body = %s", rec.Body.String())
			}
			if svc.gotBytes != 0 {
				t.Error("service should not be called on request errors")
			}
		})
	}
}

func TestTranscribeNotMultipart(t *testing.T) {
	h := NewTranscribeHandler(&fakeTranscriber{}, nil, nil, 1024)
	req := httptest.NewRequest(http.MethodPost, "/transcribe/", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Transcribe(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("code = %d, want 400", rec.Code)
	}
}

func TestSubmitQueuesJob(t *testing.T) {
	queue, _ := newTestQueue(t)
	dir := t.TempDir()
	uploads, err := storage.NewUploads(dir)
	if err != nil {
		t.Fatal(err)
	}
	h := NewTranscribeHandler(&fakeTranscriber{}, uploads, queue, 1<<20)

	body, ct := multipartBody(t, map[string]string{"language": "auto", "engine": "openai"}, "Meeting.MP3", []byte("audio"))
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.Submit(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("code = %d, want 202 (%s)", rec.Code, rec.Body.String())
	}
	var j job.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &j); err != nil {
		t.Fatal(err)
	}
	if j.Status != job.StatusPending || j.Filename != "Meeting.MP3" {
		t.Errorf("job = %+v", j)
	}

	var params job.TranscribeParams
	if err := json.Unmarshal(j.Params, &params); err != nil {
		t.Fatal(err)
	}
	if params.Engine != "openai" || params.Language != "auto" || params.Upload != j.ID+".mp3" {
		t.Errorf("params = %+v", params)
	}
	if data, err := os.ReadFile(filepath.Join(dir, params.Upload)); err != nil || string(data) != "audio" {
		t.Errorf("stored upload = %q, %v", data, err)
	}

	stored, err := queue.GetJob(j.ID)
	if err != nil || stored.Status != job.StatusPending {
		t.Errorf("stored job = %+v, %v", stored, err)
	}
}

func jobRouter(h *JobHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/jobs", h.ListJobs)
	r.Get("/jobs/{id}", h.GetJob)
	r.Delete("/jobs/{id}", h.CancelJob)
	r.Get("/jobs/{id}/result", h.GetResult)
	r.Post("/jobs/{id}/retry", h.RetryJob)
	return r
}

func TestJobHandlers(t *testing.T) {
	queue, _ := newTestQueue(t)
	router := jobRouter(NewJobHandler(queue))

	do := func(method, path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
		return rec
	}

	if rec := do(http.MethodGet, "/jobs"); rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("empty list = %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(http.MethodGet, "/jobs/missing"); rec.Code != http.StatusNotFound {
		t.Errorf("get missing = %d", rec.Code)
	}
	if rec := do(http.MethodDelete, "/jobs/missing"); rec.Code != http.StatusNotFound {
		t.Errorf("cancel missing = %d", rec.Code)
	}
	if rec := do(http.MethodPost, "/jobs/missing/retry"); rec.Code != http.StatusNotFound {
		t.Errorf("retry missing = %d", rec.Code)
	}

	j, err := queue.Enqueue(job.JobTranscribe, "a.wav", "admin", job.TranscribeParams{Upload: "x.wav"})
	if err != nil {
		t.Fatal(err)
	}

	if rec := do(http.MethodPost, "/jobs/"+j.ID+"/retry"); rec.Code != http.StatusConflict {
		t.Errorf("retry pending = %d, want 409", rec.Code)
	}
	if rec := do(http.MethodDelete, "/jobs/"+j.ID); rec.Code != http.StatusNoContent {
		t.Errorf("cancel = %d, want 204", rec.Code)
	}

	rec := do(http.MethodGet, "/jobs/"+j.ID)
	if got := decodeBody(t, rec)["status"]; got != string(job.StatusCancelled) {
		t.Errorf("status after cancel = %v", got)
	}
	if rec := do(http.MethodDelete, "/jobs/"+j.ID); rec.Code != http.StatusConflict {
		t.Errorf("cancel cancelled = %d, want 409", rec.Code)
	}
	if rec := do(http.MethodGet, "/jobs?status=pending"); strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("pending filter = %s", rec.Body.String())
	}

	rec = do(http.MethodPost, "/jobs/"+j.ID+"/retry")
	if rec.Code != http.StatusOK {
		t.Fatalf("retry cancelled = %d (%s)", rec.Code, rec.Body.String())
	}
	if got := decodeBody(t, rec)["status"]; got != string(job.StatusPending) {
		t.Errorf("status after retry = %v", got)
	}

	rec = do(http.MethodGet, "/jobs")
	var list []job.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil || len(list) != 1 {
		t.Errorf("list = %s, %v", rec.Body.String(), err)
	}
}

func TestJobResult(t *testing.T) {
	queue, database := newTestQueue(t)
	router := jobRouter(NewJobHandler(queue))

	get := func(id string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/"+id+"/result", nil))
		return rec
	}
	finish := func(status job.JobStatus, result string) string {
		t.Helper()
		j, err := queue.Enqueue(job.JobTranscribe, "a.wav", "admin", job.TranscribeParams{Upload: "x.wav"})
		if err != nil {
			t.Fatal(err)
		}
		if status == job.StatusPending {
			return j.ID
		}
		var stored any
		if result != "" {
			stored = result
		}
		if _, err := database.DB().Exec("UPDATE jobs SET status = ?, result = ? WHERE id = ?", status, stored, j.ID); err != nil {
			t.Fatal(err)
		}
		return j.ID
	}

	if rec := get("missing"); rec.Code != http.StatusNotFound {
		t.Errorf("missing = %d, want 404", rec.Code)
	}
	if rec := get(finish(job.StatusPending, "")); rec.Code != http.StatusConflict {
		t.Errorf("pending = %d, want 409", rec.Code)
	}
	if rec := get(finish(job.StatusCancelled, "")); rec.Code != http.StatusNotFound {
		t.Errorf("cancelled without result = %d, want 404", rec.Code)
	}

	done, _ := json.Marshal(pipeline.Outcome{Success: true, Text: "hello world", WordsCount: 2, Fragments: 1})
	rec := get(finish(job.StatusCompleted, string(done)))
	if rec.Code != http.StatusOK {
		t.Fatalf("completed = %d (%s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["text"] != "hello world" || body["words_count"] != float64(2) {
		t.Errorf("completed body = %v", body)
	}

	failed, _ := json.Marshal(pipeline.Outcome{Error: "engine down", ErrorKind: pipeline.ErrTranscription.Error()})
	rec = get(finish(job.StatusFailed, string(failed)))
	if rec.Code != http.StatusBadGateway {
		t.Errorf("failed = %d, want 502", rec.Code)
	}
	if body := decodeBody(t, rec); body["success"] != false || body["error_kind"] != "transcription" {
		t.Errorf("failed body = %v", body)
	}
}

func TestJobVisibility(t *testing.T) {
	queue, _ := newTestQueue(t)
	router := jobRouter(NewJobHandler(queue))

	mine, err := queue.Enqueue(job.JobTranscribe, "mine.wav", "alice", job.TranscribeParams{})
	if err != nil {
		t.Fatal(err)
	}
	theirs, err := queue.Enqueue(job.JobTranscribe, "theirs.wav", "bob", job.TranscribeParams{})
	if err != nil {
		t.Fatal(err)
	}

	as := func(claims *auth.Claims, method, path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		req = req.WithContext(context.WithValue(req.Context(), middleware.UserClaimsKey, claims))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}
	alice := &auth.Claims{UserID: 2, Username: "alice", Role: "viewer"}
	admin := &auth.Claims{UserID: 1, Username: "root", Role: "admin"}

	var list []job.Job
	if err := json.Unmarshal(as(alice, http.MethodGet, "/jobs").Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != mine.ID {
		t.Errorf("alice sees %+v", list)
	}
	if rec := as(alice, http.MethodGet, "/jobs/"+theirs.ID); rec.Code != http.StatusNotFound {
		t.Errorf("alice get bob's job = %d, want 404", rec.Code)
	}
	if rec := as(alice, http.MethodDelete, "/jobs/"+theirs.ID); rec.Code != http.StatusNotFound {
		t.Errorf("alice cancel bob's job = %d, want 404", rec.Code)
	}
	if rec := as(admin, http.MethodGet, "/jobs/"+theirs.ID); rec.Code != http.StatusOK {
		t.Errorf("admin get = %d, want 200", rec.Code)
	}
}

type mapStore struct {
	values map[string]string
}

func (m *mapStore) GetAllSettings() (map[string]string, error) { return m.values, nil }
func (m *mapStore) SetSetting(key, value string) error {
	m.values[key] = value
	return nil
}
func (m *mapStore) DeleteSetting(key string) error {
	delete(m.values, key)
	return nil
}

func TestUpdateSettings(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    int
		wantMap map[string]string
	}{
		{"set engine", `{"default_engine":"openai"}`, http.StatusNoContent, map[string]string{"default_language": "en", "default_engine": "openai"}},
		{"clear language", `{"default_language":""}`, http.StatusNoContent, map[string]string{}},
		{"unknown key", `{"nope":"x"}`, http.StatusBadRequest, map[string]string{"default_language": "en"}},
		{"unknown engine", `{"default_engine":"bogus","default_language":"de"}`, http.StatusBadRequest, map[string]string{"default_language": "en"}},
		{"bad json", `{`, http.StatusBadRequest, map[string]string{"default_language": "en"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mapStore{values: map[string]string{"default_language": "en"}}
			h := NewSettingsHandler(store, &fakeTranscriber{})

			rec := httptest.NewRecorder()
			h.UpdateSettings(rec, httptest.NewRequest(http.MethodPut, "/api/settings", strings.NewReader(tt.body)))
			if rec.Code != tt.want {
				t.Fatalf("code = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
			if len(store.values) != len(tt.wantMap) {
				t.Fatalf("values = %v, want %v", store.values, tt.wantMap)
			}
			for k, v := range tt.wantMap {
				if store.values[k] != v {
					t.Errorf("%s = %q, want %q", k, store.values[k], v)
				}
			}
		})
	}
}

func TestGetSettings(t *testing.T) {
	store := &mapStore{values: map[string]string{"default_language": "en"}}
	h := NewSettingsHandler(store, &fakeTranscriber{})

	rec := httptest.NewRecorder()
	h.GetSettings(rec, httptest.NewRequest(http.MethodGet, "/api/settings", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}

	var resp struct {
		Settings []settingResponse `json:"settings"`
		Engines  []string          `json:"engines"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Settings) != 2 || len(resp.Engines) != 2 {
		t.Fatalf("resp = %+v", resp)
	}
	lang := resp.Settings[0]
	if lang.Key != pipeline.SettingDefaultLanguage || lang.Value != "en" || !lang.HasValue {
		t.Errorf("language setting = %+v", lang)
	}
	engine := resp.Settings[1]
	if engine.HasValue || engine.Effective != "whisper.cpp" {
		t.Errorf("engine setting = %+v", engine)
	}
}

type pinger struct{ err error }

func (p pinger) Ping() error { return p.err }

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		want   int
		status string
	}{
		{"ok", nil, http.StatusOK, "ok"},
		{"db down", errors.New("database is locked"), http.StatusServiceUnavailable, "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(pinger{tt.err}, &fakeTranscriber{}, nil, 30000)
			rec := httptest.NewRecorder()
			h.Health(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

			if rec.Code != tt.want {
				t.Fatalf("code = %d, want %d", rec.Code, tt.want)
			}
			resp := decodeBody(t, rec)
			if resp["status"] != tt.status || resp["fragment_ms"] != float64(30000) || resp["language"] != "ru" {
				t.Errorf("body = %s", rec.Body.String())
			}
		})
	}
}

type userStore struct {
	user *models.User
}

func (s userStore) GetUserByUsername(username string) (*models.User, error) {
	if s.user == nil || username != s.user.Username {
		return nil, db.ErrUserNotFound
	}
	return s.user, nil
}

func (s userStore) GetUserByID(id int64) (*models.User, error) {
	if s.user == nil || id != s.user.ID {
		return nil, errors.New("not found")
	}
	return s.user, nil
}

func TestLogin(t *testing.T) {
	hash, err := auth.HashPassword("secret")
	if err != nil {
		t.Fatal(err)
	}
	jwtService := auth.NewJWTService("test-secret")
	h := NewAuthHandler(userStore{&models.User{ID: 7, Username: "alice", Password: hash, Role: "admin"}}, jwtService)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"valid", `{"username":"alice","password":"secret"}`, http.StatusOK},
		{"wrong password", `{"username":"alice","password":"nope"}`, http.StatusUnauthorized},
		{"unknown user", `{"username":"bob","password":"secret"}`, http.StatusUnauthorized},
		{"bad body", `not json`, http.StatusBadRequest},
		{"empty password", `{"username":"alice"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Login(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(tt.body)))
			if rec.Code != tt.want {
				t.Fatalf("code = %d, want %d", rec.Code, tt.want)
			}
			if tt.want != http.StatusOK {
				return
			}
			var resp loginResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			claims, err := jwtService.ValidateToken(resp.Token)
			if err != nil {
				t.Fatalf("token invalid: %v", err)
			}
			if resp.ExpiresAt.Before(time.Now()) {
				t.Errorf("expires_at = %v", resp.ExpiresAt)
			}
			if claims.UserID != 7 || claims.Role != "admin" || resp.User.Username != "alice" {
				t.Errorf("claims = %+v, user = %+v", claims, resp.User)
			}
		})
	}
}
