package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/good-yellow-bee/datamantri/internal/models"
	"github.com/good-yellow-bee/datamantri/internal/scheduler"
	"github.com/good-yellow-bee/datamantri/internal/storage"
)

type stubRunner struct {
	store storage.Storage
}

// RunAlert pretends every active alert triggers and writes a history row.
func (s *stubRunner) RunAlert(ctx context.Context, id string) (*scheduler.Outcome, error) {
	alert, err := s.store.Alerts().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, scheduler.ErrAlertNotFound
	}
	if !alert.IsActive {
		return nil, scheduler.ErrAlertInactive
	}
	payload := &models.AlertPayload{Severity: models.SeverityWarning, Details: map[string]any{"source": "stub"}}
	history := &models.AlertHistory{
		AlertID:     alert.ID,
		AlertName:   alert.Name,
		TriggeredAt: time.Now().UTC(),
		Severity:    payload.Severity,
	}
	if err := s.store.AlertHistory().Create(ctx, history); err != nil {
		return nil, err
	}
	return &scheduler.Outcome{Alert: alert, Payload: payload, History: history}, nil
}

// testServer creates a test server backed by a temp-dir SQLite database.
func testServer(t *testing.T) (*Server, storage.Storage) {
	t.Helper()

	store := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "api.db"), []byte("test-master-key-32-bytes-long!!!"))
	if err := store.Open(); err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate storage: %v", err)
	}

	srv, err := New(&Config{Address: ":0", Version: "test", EvaluateRateLimit: 2}, store, &stubRunner{store: store}, nil)
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	t.Cleanup(srv.cancel)
	return srv, store
}

func createTestAlert(t *testing.T, store storage.Storage, name string) *models.Alert {
	t.Helper()
	alert := models.NewAlert(name, models.ConditionDatasourceFailure)
	alert.ConditionConfig = map[string]any{"data_source_id": "ds-1"}
	alert.Channels = []models.Channel{models.ChannelEmail}
	alert.Recipients = map[models.Channel]models.RecipientList{models.ChannelEmail: {"ops@example.com"}}
	if err := store.Alerts().Create(context.Background(), alert); err != nil {
		t.Fatalf("create alert: %v", err)
	}
	return alert
}

func doRequest(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, nil, nil, nil); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := New(&Config{}, nil, nil, nil); err == nil {
		t.Error("expected error for nil storage")
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := testServer(t)

	rec := doRequest(t, srv, "GET", "/health", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("/health status = %d, want 200", rec.Code)
	}

	rec = doRequest(t, srv, "GET", "/health/ready", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("/health/ready status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestAlertLifecycle(t *testing.T) {
	srv, store := testServer(t)
	alert := createTestAlert(t, store, "Warehouse down")

	rec := doRequest(t, srv, "GET", "/api/v1/alerts", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var list struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Data) != 1 || list.Data[0]["id"] != alert.ID {
		t.Fatalf("list = %v", list.Data)
	}

	rec = doRequest(t, srv, "POST", "/api/v1/alerts/"+alert.ID+"/evaluate", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("evaluate status = %d: %s", rec.Code, rec.Body.String())
	}
	var eval struct {
		Data struct {
			Triggered bool   `json:"triggered"`
			HistoryID string `json:"history_id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&eval); err != nil {
		t.Fatalf("decode evaluate: %v", err)
	}
	if !eval.Data.Triggered || eval.Data.HistoryID == "" {
		t.Fatalf("evaluate = %+v", eval.Data)
	}

	rec = doRequest(t, srv, "GET", "/api/v1/alerts/"+alert.ID+"/history", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("alert history status = %d", rec.Code)
	}

	resolvePath := "/api/v1/history/" + eval.Data.HistoryID + "/resolve"
	rec = doRequest(t, srv, "POST", resolvePath, map[string]string{"resolved_by": "alice", "notes": "fixed"})
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve status = %d: %s", rec.Code, rec.Body.String())
	}
	rec = doRequest(t, srv, "POST", resolvePath, map[string]string{"resolved_by": "bob"})
	if rec.Code != http.StatusConflict {
		t.Errorf("second resolve status = %d, want 409", rec.Code)
	}

	rec = doRequest(t, srv, "PUT", "/api/v1/alerts/"+alert.ID+"/active", map[string]bool{"is_active": false})
	if rec.Code != http.StatusOK {
		t.Fatalf("set active status = %d", rec.Code)
	}
	rec = doRequest(t, srv, "POST", "/api/v1/alerts/"+alert.ID+"/evaluate", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("evaluate inactive status = %d, want 409", rec.Code)
	}
}

func TestEvaluateRateLimited(t *testing.T) {
	srv, store := testServer(t)
	alert := createTestAlert(t, store, "a")

	path := "/api/v1/alerts/" + alert.ID + "/evaluate"
	for i := 0; i < 2; i++ {
		if rec := doRequest(t, srv, "POST", path, nil); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}
	if rec := doRequest(t, srv, "POST", path, nil); rec.Code != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", rec.Code)
	}
}

func TestNotFoundEnvelope(t *testing.T) {
	srv, _ := testServer(t)

	rec := doRequest(t, srv, "GET", "/api/v1/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != ErrCodeNotFound {
		t.Errorf("error = %+v", resp.Error)
	}

	rec = doRequest(t, srv, "GET", "/api/v1/alerts/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing alert status = %d, want 404", rec.Code)
	}
}
