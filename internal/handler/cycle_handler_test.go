package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dushixiang/quanterra/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeScheduler struct {
	spec    string
	result  *service.CycleResult
	err     error
	runs    int
	updates []string
}

func (f *fakeScheduler) GetTaskStatus() map[string]interface{} {
	return map[string]interface{}{"spec": f.spec}
}

func (f *fakeScheduler) LastResult() (*service.CycleResult, error) {
	return f.result, f.err
}

func (f *fakeScheduler) UpdateSchedule(spec string) error {
	if spec == "bogus" {
		return errors.New("添加 cron 任务失败: expected exactly 6 fields")
	}
	f.updates = append(f.updates, spec)
	f.spec = spec
	return nil
}

func (f *fakeScheduler) RunNow() {
	f.runs++
}

func newTestRouter(s *fakeScheduler) http.Handler {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("quanterra_cycles_total 1\n"))
	})
	return NewRouter(NewCycleHandler(zap.NewNop(), s), metrics)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestRouter(&fakeScheduler{})

	rec := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")

	rec = do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "quanterra_cycles_total")
}

func TestScheduleEndpoints(t *testing.T) {
	s := &fakeScheduler{spec: "@every 300s"}
	h := newTestRouter(s)

	rec := do(t, h, http.MethodGet, "/api/schedule", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "@every 300s")

	rec = do(t, h, http.MethodPut, "/api/schedule", `{"spec":"@every 60s"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"@every 60s"}, s.updates)

	rec = do(t, h, http.MethodPut, "/api/schedule", `{"spec":"bogus"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "@every 60s", s.spec)

	rec = do(t, h, http.MethodPut, "/api/schedule", `{"spec":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLastCycle(t *testing.T) {
	s := &fakeScheduler{}
	h := newTestRouter(s)

	rec := do(t, h, http.MethodGet, "/api/cycles/last", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	s.result = &service.CycleResult{ID: "c1", Registered: 4, Samples: 12}
	rec = do(t, h, http.MethodGet, "/api/cycles/last", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Result service.CycleResult `json:"result"`
		Error  string              `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "c1", body.Result.ID)
	assert.Equal(t, 12, body.Result.Samples)
	assert.Empty(t, body.Error)

	s.err = errors.New("inventory unavailable")
	rec = do(t, h, http.MethodGet, "/api/cycles/last", "")
	assert.Contains(t, rec.Body.String(), "inventory unavailable")
}

func TestRunCycleTrigger(t *testing.T) {
	s := &fakeScheduler{}
	rec := do(t, newTestRouter(s), http.MethodPost, "/api/cycles/run", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, s.runs)
}
