package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"devicefarm-server/internal/agent"
	"devicefarm-server/internal/auth"
	"devicefarm-server/internal/database"
	"devicefarm-server/internal/database/databasetest"
	"devicefarm-server/internal/hub"
	"devicefarm-server/internal/middleware"
	"devicefarm-server/internal/settings"
	"devicefarm-server/internal/store"
	"devicefarm-server/internal/upload"
)

type testEnv struct {
	router  *gin.Engine
	db      *database.DB
	store   *store.Store
	hub     *hub.Hub
	uploads *upload.Dir
}

func newTestEnv(t *testing.T, tokenCfg auth.TokenConfig) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := databasetest.NewDB(t)
	st := store.New(db)
	uploads, err := upload.New(filepath.Join(t.TempDir(), "upload"))
	if err != nil {
		t.Fatalf("upload.New: %v", err)
	}
	h := hub.New()
	limiter := middleware.NewRateLimiter(10, time.Minute)
	t.Cleanup(limiter.Stop)
	r := NewRouter(Deps{
		DB:            db,
		Store:         st,
		Settings:      settings.Open(filepath.Join(t.TempDir(), "settings.toml")),
		Agent:         agent.NewClient(agent.Options{Timeout: 2 * time.Second}),
		Hub:           h,
		Uploads:       uploads,
		TokenConfig:   tokenCfg,
		TokenLimiter:  limiter,
		PublicBaseURL: "http://farm.local:8090",
	})
	return &testEnv{router: r, db: db, store: st, hub: h, uploads: uploads}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) upload(t *testing.T, path string, fields map[string]string, fileField, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	fw, err := mw.CreateFormFile(fileField, filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	_, _ = io.WriteString(fw, content)
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func expectCode(t *testing.T, w *httptest.ResponseRecorder, code int) {
	t.Helper()
	if w.Code != code {
		t.Fatalf("expected %d, got %d: %s", code, w.Code, w.Body.String())
	}
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal envelope: %v: %s", err, w.Body.String())
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		t.Fatalf("unmarshal data: %v: %s", err, string(env.Data))
	}
}

func agentAddr(srv *httptest.Server) string {
	return strings.TrimPrefix(srv.URL, "http://")
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t, auth.TokenConfig{})
	w := e.do(t, http.MethodGet, "/health", nil)
	expectCode(t, w, http.StatusOK)

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["ok"] != true || resp["schema"] != float64(1) {
		t.Fatalf("unexpected health response: %v", resp)
	}
}

func TestMissingParametersAreBadRequests(t *testing.T) {
	e := newTestEnv(t, auth.TokenConfig{})
	cases := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodGet, "/api/account_by_device", nil},
		{http.MethodGet, "/api/account/auto_train", nil},
		{http.MethodGet, "/api/runable_publish_job", nil},
		{http.MethodGet, "/api/runable_train_job", nil},
		{http.MethodGet, "/api/device/task_status", nil},
		{http.MethodGet, "/api/device/init?serial=S1", nil},
		{http.MethodGet, "/api/device/init?serial=S1&init=x", nil},
		{http.MethodDelete, "/api/account", nil},
		{http.MethodDelete, "/api/music?id=abc", nil},
		{http.MethodGet, "/api/script", nil},
		{http.MethodGet, "/api/material?used=yes", nil},
		{http.MethodPost, "/api/shell", map[string]any{"serial": "S1"}},
		{http.MethodPost, "/api/account", map[string]any{"email": "a@x"}},
		{http.MethodPost, "/api/publish_job", map[string]any{"material_id": 1}},
		{http.MethodPut, "/api/device/online", map[string]any{"serial": "S1"}},
		{http.MethodPut, "/api/group", map[string]any{"id": 1}},
	}
	for _, tc := range cases {
		w := e.do(t, tc.method, tc.path, tc.body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s %s: expected 400, got %d: %s", tc.method, tc.path, w.Code, w.Body.String())
		}
	}
}

func TestUnknownIDIsNotFound(t *testing.T) {
	e := newTestEnv(t, auth.TokenConfig{})
	expectCode(t, e.do(t, http.MethodDelete, "/api/group?id=99", nil), http.StatusNotFound)
	expectCode(t, e.do(t, http.MethodPut, "/api/account", map[string]any{"id": 99, "fans": 3}), http.StatusNotFound)
	expectCode(t, e.do(t, http.MethodGet, "/api/music/random", nil), http.StatusNotFound)
}

func TestGroupDefaultsThroughAPI(t *testing.T) {
	e := newTestEnv(t, auth.TokenConfig{})
	expectCode(t, e.do(t, http.MethodPost, "/api/group", map[string]any{"name": "g1"}), http.StatusOK)
	expectCode(t, e.do(t, http.MethodPost, "/api/group", map[string]any{"name": "bad", "train_start_time": "7pm"}), http.StatusBadRequest)

	w := e.do(t, http.MethodGet, "/api/group", nil)
	expectCode(t, w, http.StatusOK)
	var groups []map[string]any
	decodeData(t, w, &groups)
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if groups[0]["publish_start_time"] != "02:10" || groups[0]["auto_train"] != float64(1) {
		t.Fatalf("unexpected defaults: %v", groups[0])
	}

	var one map[string]any
	decodeData(t, e.do(t, http.MethodGet, "/api/group?id=1", nil), &one)
	if one["name"] != "g1" {
		t.Fatalf("unexpected group %v", one)
	}
	expectCode(t, e.do(t, http.MethodGet, "/api/group?id=42", nil), http.StatusNotFound)
	expectCode(t, e.do(t, http.MethodGet, "/api/group?id=x", nil), http.StatusBadRequest)
}

func TestMaterialUploadFailureRemovesNewFiles(t *testing.T) {
	e := newTestEnv(t, auth.TokenConfig{})
	expectCode(t, e.upload(t, "/api/material", nil, "files", "old.mp4", "abc"), http.StatusOK)

	var m map[string]any
	decodeData(t, e.do(t, http.MethodGet, "/api/material?id=1", nil), &m)
	if m["md5"] != "900150983cd24fb0d6963f7d28e17f72" {
		t.Fatalf("unexpected material %v", m)
	}

	if _, err := e.db.Exec("DROP TABLE material"); err != nil {
		t.Fatalf("drop material: %v", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range map[string]string{"again.mp4": "abc", "new.mp4": "xyz"} {
		fw, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		_, _ = io.WriteString(fw, content)
	}
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/material", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	expectCode(t, w, http.StatusInternalServerError)

	dir := e.uploads.Path(upload.MaterialDir)
	if _, err := os.Stat(filepath.Join(dir, "900150983cd24fb0d6963f7d28e17f72.mp4")); err != nil {
		t.Fatalf("file stored by an earlier request must survive: %v", err)
	}
	// md5("xyz")
	if _, err := os.Stat(filepath.Join(dir, "d16fb36f0911f878998c136191af705e.mp4")); !os.IsNotExist(err) {
		t.Fatalf("expected file from the failed request to be removed, stat err %v", err)
	}
}

func TestMaterialToPublishJobFlow(t *testing.T) {
	e := newTestEnv(t, auth.TokenConfig{})

	w := e.upload(t, "/api/material", map[string]string{"group_id": "3"}, "files", "clip.mp4", "abc")
	expectCode(t, w, http.StatusOK)
	var uploaded []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
		MD5  string `json:"md5"`
	}
	decodeData(t, w, &uploaded)
	if len(uploaded) != 1 || uploaded[0].MD5 != "900150983cd24fb0d6963f7d28e17f72" {
		t.Fatalf("unexpected upload result: %+v", uploaded)
	}
	if uploaded[0].Name != "material/900150983cd24fb0d6963f7d28e17f72.mp4" {
		t.Fatalf("unexpected stored name %q", uploaded[0].Name)
	}

	w = e.do(t, http.MethodGet, "/material/900150983cd24fb0d6963f7d28e17f72.mp4", nil)
	expectCode(t, w, http.StatusOK)
	if w.Body.String() != "abc" {
		t.Fatalf("unexpected file body %q", w.Body.String())
	}

	var count int
	decodeData(t, e.do(t, http.MethodGet, "/api/material/count?used=0&group_id=3", nil), &count)
	if count != 1 {
		t.Fatalf("expected 1 unused material, got %d", count)
	}

	expectCode(t, e.do(t, http.MethodPost, "/api/device", map[string]any{
		"serial": "S1", "agent_ip": "10.0.0.1", "master_ip": "10.0.0.100", "online": 1,
	}), http.StatusNoContent)

	w = e.do(t, http.MethodPost, "/api/account", map[string]any{"email": "a@x", "pwd": "p", "device": "S1"})
	expectCode(t, w, http.StatusOK)
	var acc struct {
		ID int64 `json:"id"`
	}
	decodeData(t, w, &acc)

	w = e.do(t, http.MethodPost, "/api/publish_job", map[string]any{
		"material_id": uploaded[0].ID, "account_id": acc.ID, "title": "hello",
	})
	expectCode(t, w, http.StatusOK)
	var job struct {
		ID int64 `json:"id"`
	}
	decodeData(t, w, &job)

	decodeData(t, e.do(t, http.MethodGet, "/api/material/count?used=0", nil), &count)
	if count != 0 {
		t.Fatalf("expected material to be marked used, %d unused left", count)
	}

	var runnable []map[string]any
	decodeData(t, e.do(t, http.MethodGet, "/api/runable_publish_job?agent_ip=10.0.0.1", nil), &runnable)
	if len(runnable) != 1 || runnable[0]["material_name"] != uploaded[0].Name {
		t.Fatalf("unexpected runnable jobs: %v", runnable)
	}

	expectCode(t, e.do(t, http.MethodPut, "/api/publish_job", map[string]any{"id": job.ID, "status": 7}), http.StatusBadRequest)
	expectCode(t, e.do(t, http.MethodPut, "/api/publish_job", map[string]any{"id": job.ID, "status": 2}), http.StatusNoContent)

	var jobs []map[string]any
	decodeData(t, e.do(t, http.MethodGet, "/api/publish_job", nil), &jobs)
	if len(jobs) != 1 || jobs[0]["status"] != float64(2) || jobs[0]["end_time"] == nil {
		t.Fatalf("expected completed job with end_time, got %v", jobs)
	}

	decodeData(t, e.do(t, http.MethodGet, "/api/runable_publish_job?agent_ip=10.0.0.1", nil), &runnable)
	if len(runnable) != 0 {
		t.Fatalf("completed job must not be runnable: %v", runnable)
	}
}

func TestJobMaintenanceEndpoints(t *testing.T) {
	e := newTestEnv(t, auth.TokenConfig{})
	expectCode(t, e.do(t, http.MethodPost, "/api/account", map[string]any{"email": "a@x", "pwd": "p"}), http.StatusOK)

	for _, status := range []int{3, 3, 2} {
		expectCode(t, e.do(t, http.MethodPost, "/api/train_job", map[string]any{"account_id": 1, "status": status}), http.StatusOK)
	}

	var retried int
	decodeData(t, e.do(t, http.MethodPost, "/api/train_job/retry", nil), &retried)
	if retried != 2 {
		t.Fatalf("expected 2 retried, got %d", retried)
	}

	var counts []struct {
		Status int `json:"status"`
		Count  int `json:"count"`
	}
	decodeData(t, e.do(t, http.MethodGet, "/api/train_job/status_count", nil), &counts)
	if len(counts) != 2 || counts[0].Status != 0 || counts[0].Count != 2 || counts[1].Status != 2 {
		t.Fatalf("unexpected status counts: %+v", counts)
	}

	var pending int
	decodeData(t, e.do(t, http.MethodGet, "/api/train_job/count?status=0&account_id=1", nil), &pending)
	if pending != 2 {
		t.Fatalf("expected 2 pending jobs for account 1, got %d", pending)
	}
	expectCode(t, e.do(t, http.MethodGet, "/api/train_job/count?status=9", nil), http.StatusBadRequest)

	expectCode(t, e.do(t, http.MethodDelete, "/api/train_job/all", nil), http.StatusNoContent)
	w := e.do(t, http.MethodPost, "/api/train_job", map[string]any{"account_id": 1})
	expectCode(t, w, http.StatusOK)
	var created struct {
		ID int64 `json:"id"`
	}
	decodeData(t, w, &created)
	if created.ID != 1 {
		t.Fatalf("expected ids to restart at 1, got %d", created.ID)
	}
}

func TestFanOutContinuesPastFailingDevice(t *testing.T) {
	e := newTestEnv(t, auth.TokenConfig{})

	var mu sync.Mutex
	var gotCmds []string
	live := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotCmds = append(gotCmds, r.URL.Path+"?"+r.URL.RawQuery)
		mu.Unlock()
		switch r.URL.Path {
		case agent.PathTaskStatus:
			_, _ = w.Write([]byte(`{"data":{"task":"publish","running":true}}`))
		default:
			_, _ = w.Write([]byte(`{"data":"ok"}`))
		}
	}))
	defer live.Close()
	dead := httptest.NewServer(http.NotFoundHandler())
	deadAddr := agentAddr(dead)
	dead.Close()

	expectCode(t, e.do(t, http.MethodPost, "/api/device", map[string]any{"serial": "A", "agent_ip": deadAddr, "online": 1}), http.StatusNoContent)
	expectCode(t, e.do(t, http.MethodPost, "/api/device", map[string]any{"serial": "B", "agent_ip": agentAddr(live), "online": 1}), http.StatusNoContent)

	w := e.do(t, http.MethodPost, "/api/shell", map[string]any{"cmd": "input keyevent 3"})
	expectCode(t, w, http.StatusOK)
	var outcomes []agent.Outcome
	decodeData(t, w, &outcomes)
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	if outcomes[0].Serial != "A" || outcomes[0].OK || outcomes[0].Error == "" {
		t.Fatalf("expected A to fail, got %+v", outcomes[0])
	}
	if outcomes[1].Serial != "B" || !outcomes[1].OK {
		t.Fatalf("expected B to succeed, got %+v", outcomes[1])
	}

	w = e.do(t, http.MethodGet, "/api/script?script=warmup.js&args=--fast", nil)
	expectCode(t, w, http.StatusOK)

	w = e.upload(t, "/api/install", map[string]string{"serial": "B"}, "file", "app.apk", "PK")
	expectCode(t, w, http.StatusOK)
	decodeData(t, w, &outcomes)
	if len(outcomes) != 1 || !outcomes[0].OK {
		t.Fatalf("unexpected install outcomes: %+v", outcomes)
	}
	expectCode(t, e.do(t, http.MethodGet, "/apk/app.apk", nil), http.StatusOK)

	mu.Lock()
	calls := append([]string(nil), gotCmds...)
	mu.Unlock()
	want := []string{
		agent.PathShell + "?cmd=input+keyevent+3&serial=B",
		agent.PathScript + "?args=--fast&filename=warmup.js&serial=B",
		agent.PathInstall + "?serial=B&url=http%3A%2F%2Ffarm.local%3A8090%2Fapk%2Fapp.apk",
	}
	if len(calls) != len(want) {
		t.Fatalf("expected %d agent calls, got %v", len(want), calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("call %d: expected %q, got %q", i, want[i], calls[i])
		}
	}

	expectCode(t, e.do(t, http.MethodPost, "/api/device", map[string]any{"serial": "C", "agent_ip": deadAddr, "online": 1}), http.StatusNoContent)
	w = e.do(t, http.MethodGet, "/api/device/task_status?serial=B", nil)
	expectCode(t, w, http.StatusOK)
	var status map[string]any
	decodeData(t, w, &status)
	if status["task"] != "publish" {
		t.Fatalf("unexpected task status %v", status)
	}

	w = e.do(t, http.MethodGet, "/api/device/task_status?serial=C", nil)
	expectCode(t, w, http.StatusOK)
	var generic string
	decodeData(t, w, &generic)
	if generic != "error" {
		t.Fatalf("expected generic error payload, got %q", generic)
	}
}

func TestDeviceEndpoints(t *testing.T) {
	e := newTestEnv(t, auth.TokenConfig{})
	expectCode(t, e.do(t, http.MethodPost, "/api/device", map[string]any{"serial": "S1", "agent_ip": "a1", "online": 1}), http.StatusNoContent)
	expectCode(t, e.do(t, http.MethodPost, "/api/device", map[string]any{"serial": "S2", "agent_ip": "a2", "online": 1}), http.StatusNoContent)
	expectCode(t, e.do(t, http.MethodPut, "/api/device/online", map[string]any{"serial": "S2", "online": 0}), http.StatusNoContent)
	expectCode(t, e.do(t, http.MethodGet, "/api/device/init?serial=S1&init=1", nil), http.StatusNoContent)
	expectCode(t, e.do(t, http.MethodGet, "/api/device/init?serial=nope&init=1", nil), http.StatusNotFound)

	var devices []map[string]any
	decodeData(t, e.do(t, http.MethodGet, "/api/device", nil), &devices)
	if len(devices) != 1 || devices[0]["serial"] != "S1" || devices[0]["init"] != float64(1) {
		t.Fatalf("unexpected online devices: %v", devices)
	}
	decodeData(t, e.do(t, http.MethodGet, "/api/device?agent_ip=a2", nil), &devices)
	if len(devices) != 0 {
		t.Fatalf("expected no online devices on a2, got %v", devices)
	}
	decodeData(t, e.do(t, http.MethodGet, "/api/device/all", nil), &devices)
	if len(devices) != 2 {
		t.Fatalf("expected 2 devices, got %v", devices)
	}
}

func TestSettingsEndpoints(t *testing.T) {
	e := newTestEnv(t, auth.TokenConfig{})
	for key := range settings.EnvVars(settings.Settings{}) {
		t.Setenv(key, "")
	}

	var s settings.Settings
	decodeData(t, e.do(t, http.MethodGet, "/api/settings", nil), &s)
	if s.ADBMode != "usb" {
		t.Fatalf("expected adb_mode default usb, got %q", s.ADBMode)
	}

	w := e.do(t, http.MethodPut, "/api/settings", map[string]any{"timezone": "Asia/Shanghai"})
	expectCode(t, w, http.StatusOK)
	decodeData(t, e.do(t, http.MethodGet, "/api/settings", nil), &s)
	if s.Timezone != "Asia/Shanghai" || s.ADBMode != "usb" {
		t.Fatalf("unexpected settings after update: %+v", s)
	}
	if got := os.Getenv("TIMEZONE"); got != "Asia/Shanghai" {
		t.Fatalf("expected TIMEZONE to be exported, got %q", got)
	}
}

func TestAuthEnabled(t *testing.T) {
	cfg := auth.TokenConfig{Secret: "secret", Expiry: time.Hour, Issuer: "test"}
	e := newTestEnv(t, cfg)

	expectCode(t, e.do(t, http.MethodGet, "/api/account", nil), http.StatusUnauthorized)
	expectCode(t, e.do(t, http.MethodPost, "/api/auth/token", map[string]any{"secret": "wrong"}), http.StatusUnauthorized)

	w := e.do(t, http.MethodPost, "/api/auth/token", map[string]any{"secret": "secret"})
	expectCode(t, w, http.StatusOK)
	var tok struct {
		Token string `json:"token"`
	}
	decodeData(t, w, &tok)

	req := httptest.NewRequest(http.MethodGet, "/api/account", nil)
	req.Header.Set("Authorization", "Bearer "+tok.Token)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	expectCode(t, rec, http.StatusOK)

	expectCode(t, e.do(t, http.MethodGet, "/health", nil), http.StatusOK)
}

func TestAuthTokenDisabled(t *testing.T) {
	e := newTestEnv(t, auth.TokenConfig{})
	expectCode(t, e.do(t, http.MethodPost, "/api/auth/token", map[string]any{"secret": "x"}), http.StatusNotFound)
	expectCode(t, e.do(t, http.MethodGet, "/api/account", nil), http.StatusOK)
}
