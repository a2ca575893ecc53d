package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"vericase/pkg/queue"
	"vericase/services/ingest/internal/app"
)

type fakeJobs struct {
	jobs map[string]queue.JobStatus
	err  error
}

func (f *fakeJobs) Enqueue(_ context.Context, trigger queue.Trigger) (queue.JobStatus, error) {
	if f.err != nil {
		return queue.JobStatus{}, f.err
	}
	job := queue.JobStatus{ID: "job-1", Trigger: trigger, Status: queue.StatusQueued}
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeJobs) GetJob(_ context.Context, id string) (queue.JobStatus, bool, error) {
	job, ok := f.jobs[id]
	return job, ok, nil
}

func newTestServer(t *testing.T, jobs *fakeJobs) http.Handler {
	t.Helper()
	reg := prometheus.NewRegistry()
	app.NewMetrics(reg)
	srv, err := New(Config{
		Jobs:          jobs,
		InternalToken: "secret",
		Metrics:       promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return srv.Router()
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestServer(t, &fakeJobs{jobs: map[string]queue.JobStatus{}})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("healthz: code=%d headers=%v", rec.Code, rec.Header())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "vericase_ingest_messages_total") {
		t.Fatalf("metrics: code=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestJobsRequireInternalToken(t *testing.T) {
	h := newTestServer(t, &fakeJobs{jobs: map[string]queue.JobStatus{}})
	for _, token := range []string{"", "wrong"} {
		req := httptest.NewRequest(http.MethodPost, "/ingest/jobs", strings.NewReader(`{"containerId":"c1"}`))
		if token != "" {
			req.Header.Set("X-Internal-Token", token)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("token %q: code=%d, want 401", token, rec.Code)
		}
	}
}

func TestEnqueueAndGetJob(t *testing.T) {
	jobs := &fakeJobs{jobs: map[string]queue.JobStatus{}}
	h := newTestServer(t, jobs)

	req := httptest.NewRequest(http.MethodPost, "/ingest/jobs", strings.NewReader(`{"containerId":" c1 ","storageKey":"uploads/c1.pst","caseId":"case-1","companyId":"co-1"}`))
	req.Header.Set("X-Internal-Token", "secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("enqueue: code=%d body=%s", rec.Code, rec.Body.String())
	}
	var job queue.JobStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if job.Trigger.ContainerID != "c1" || job.Trigger.CaseID != "case-1" {
		t.Fatalf("unexpected trigger: %+v", job.Trigger)
	}

	req = httptest.NewRequest(http.MethodGet, "/ingest/jobs/job-1", nil)
	req.Header.Set("X-Internal-Token", "secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"queued"`) {
		t.Fatalf("get job: code=%d body=%s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/ingest/jobs/unknown", nil)
	req.Header.Set("X-Internal-Token", "secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown job: code=%d", rec.Code)
	}
}

func TestEnqueueErrorStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: c9", app.ErrContainerNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: c1 is ready", app.ErrContainerNotRunnable), http.StatusConflict},
		{fmt.Errorf("caseId required"), http.StatusBadRequest},
	}
	for _, tc := range cases {
		h := newTestServer(t, &fakeJobs{jobs: map[string]queue.JobStatus{}, err: tc.err})
		req := httptest.NewRequest(http.MethodPost, "/ingest/jobs", strings.NewReader(`{"containerId":"c1"}`))
		req.Header.Set("X-Internal-Token", "secret")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("%v: code=%d, want %d", tc.err, rec.Code, tc.want)
		}
	}

	h := newTestServer(t, &fakeJobs{jobs: map[string]queue.JobStatus{}})
	req := httptest.NewRequest(http.MethodPost, "/ingest/jobs", strings.NewReader(`{`))
	req.Header.Set("X-Internal-Token", "secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid body: code=%d", rec.Code)
	}
}
