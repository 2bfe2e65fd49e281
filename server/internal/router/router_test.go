package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/navid-fn/radar-history/internal/models"
	"github.com/navid-fn/radar-history/internal/taskmgr"
	"github.com/navid-fn/radar-history/server/internal/handler"
	"github.com/sirupsen/logrus"
)

type fakeDownloader struct {
	tasks *taskmgr.Manager
	got   []models.DownloadParams
}

func (f *fakeDownloader) Submit(params models.DownloadParams) (string, error) {
	f.got = append(f.got, params)
	return f.tasks.Create(params)
}

func newTestRouter(t *testing.T) (*gin.Engine, *taskmgr.Manager, *fakeDownloader) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	tasks := taskmgr.New(nil, logger)
	t.Cleanup(tasks.Close)

	dl := &fakeDownloader{tasks: tasks}
	h := handler.NewTaskHandler(dl, tasks, models.DownloadParams{MaxWorkers: 6, SaveDir: "data/crypto"})
	return NewRouter(&Config{TaskHandler: h}), tasks, dl
}

func do(r http.Handler, method, path, body string) (*httptest.ResponseRecorder, handler.Response) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp handler.Response
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func TestCreateDownload(t *testing.T) {
	r, tasks, dl := newTestRouter(t)

	w, resp := do(r, http.MethodPost, "/v1/download/crypto", `{"exchange":"binance","intervals":["1d"],"max_collector_count":3}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d: %s", w.Code, w.Body.String())
	}
	if resp.Code != http.StatusAccepted {
		t.Errorf("Expected envelope code 202, got %d", resp.Code)
	}
	data, _ := resp.Data.(map[string]any)
	id, _ := data["task_id"].(string)
	if id == "" {
		t.Fatalf("Expected task_id in response, got %v", resp.Data)
	}
	if _, err := tasks.Get(context.Background(), id); err != nil {
		t.Errorf("Expected task %s to exist: %v", id, err)
	}

	if len(dl.got) != 1 {
		t.Fatalf("Expected 1 submitted download, got %d", len(dl.got))
	}
	p := dl.got[0]
	if p.MaxWorkers != 6 || p.MaxRounds != 3 || p.SaveDir != "data/crypto" {
		t.Errorf("Expected defaults merged with request, got %+v", p)
	}
}

func TestCreateDownloadRejectsBadInput(t *testing.T) {
	r, _, _ := newTestRouter(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"exchange":`},
		{"unknown exchange", `{"exchange":"kraken","intervals":["1d"]}`},
		{"no intervals", `{"exchange":"okx"}`},
		{"reversed window", `{"exchange":"okx","intervals":["1d"],"start_time":"2024-02-01","end_time":"2024-01-01"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := do(r, http.MethodPost, "/v1/download/crypto", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", w.Code)
			}
			if resp.Message == "" {
				t.Error("Expected error message in envelope")
			}
		})
	}
}

func TestGetAndDeleteTask(t *testing.T) {
	r, tasks, _ := newTestRouter(t)
	id, err := tasks.Create(models.DownloadParams{Exchange: "okx", Intervals: []string{"1h"}})
	if err != nil {
		t.Fatal(err)
	}

	w, resp := do(r, http.MethodGet, "/v1/tasks/"+id, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	data, _ := resp.Data.(map[string]any)
	if data["task_id"] != id || data["status"] != string(models.TaskPending) {
		t.Errorf("Unexpected task payload %v", data)
	}

	if w, _ := do(r, http.MethodDelete, "/v1/tasks/"+id, ""); w.Code != http.StatusOK {
		t.Errorf("Expected delete status 200, got %d", w.Code)
	}
	if w, _ := do(r, http.MethodGet, "/v1/tasks/"+id, ""); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", w.Code)
	}
	if w, _ := do(r, http.MethodDelete, "/v1/tasks/"+id, ""); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 deleting twice, got %d", w.Code)
	}
}

func TestListTasksFilter(t *testing.T) {
	r, tasks, _ := newTestRouter(t)
	params := models.DownloadParams{Exchange: "binance", Intervals: []string{"1d"}}
	a, _ := tasks.Create(params)
	_, _ = tasks.Create(params)
	if err := tasks.Start(a); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		query  string
		status int
		count  int
	}{
		{"", http.StatusOK, 2},
		{"?status=running", http.StatusOK, 1},
		{"?status=pending", http.StatusOK, 1},
		{"?status=failed", http.StatusOK, 0},
		{"?status=bogus", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w, resp := do(r, http.MethodGet, "/v1/tasks"+tt.query, "")
			if w.Code != tt.status {
				t.Fatalf("Expected status %d, got %d", tt.status, w.Code)
			}
			if tt.status != http.StatusOK {
				return
			}
			list, _ := resp.Data.([]any)
			if len(list) != tt.count {
				t.Errorf("Expected %d tasks, got %d", tt.count, len(list))
			}
		})
	}
}
