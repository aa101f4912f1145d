package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/taskreview/internal/artifact"
	"github.com/mrz1836/taskreview/internal/clock"
	"github.com/mrz1836/taskreview/internal/constants"
	"github.com/mrz1836/taskreview/internal/domain"
	reviewerrors "github.com/mrz1836/taskreview/internal/errors"
	"github.com/mrz1836/taskreview/internal/identity"
	"github.com/mrz1836/taskreview/internal/metrics"
	"github.com/mrz1836/taskreview/internal/task"
)

type failingUploader struct{}

func (failingUploader) Put(context.Context, string, string, io.Reader) (string, error) {
	return "", reviewerrors.Resourcef(nil, "bucket unreachable")
}

type apiFixture struct {
	server  *Server
	storage *artifact.LocalStorage
}

func newAPIFixture(t *testing.T, opts ...task.ServiceOption) *apiFixture {
	t.Helper()

	storage, err := artifact.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	base := []task.ServiceOption{
		task.WithClock(clock.NewManual(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))),
		task.WithUploader(storage),
		task.WithMetrics(metrics.New(reg)),
		task.WithConfig(task.ServiceConfig{EnforceDeadlineOrder: true}),
	}
	svc := task.NewService(task.NewMemoryStore(), append(base, opts...)...)
	return &apiFixture{
		server:  New(svc, identity.NewStaticProvider([]string{"root"}), WithMetricsGatherer(reg), WithMaxUploadBytes(1<<20)),
		storage: storage,
	}
}

func (f *apiFixture) do(t *testing.T, method, path, actor string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != "" {
		req.Header.Set(ActorHeader, actor)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) upload(t *testing.T, path, actor, fileName, content, comment string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if fileName != "" {
		part, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.WriteField("comment", comment))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(ActorHeader, actor)
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (f *apiFixture) createTask(t *testing.T) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/tasks", "root", map[string]any{
		"id":                  "t-1",
		"project_id":          "proj-1",
		"label":               "Site survey",
		"assignee":            "u1",
		"validators":          []string{"u2", "u3"},
		"deadline":            "2026-03-10",
		"validation_deadline": "2026-03-12",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[domain.Task](t, rec).ID
}

func TestHealthz(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestTasksRequireCredential(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/tasks", "", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "authorization", decode[errorResponse](t, rec).Error)
}

func TestLifecycleOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createTask(t)

	rec := f.do(t, http.MethodPost, "/tasks/"+id+"/start", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, constants.TaskStatusInProgress, decode[domain.Task](t, rec).Status)

	rec = f.upload(t, "/tasks/"+id+"/submit", "u1", "survey.pdf", "pdf bytes", "first draft")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	submitted := decode[domain.Task](t, rec)
	assert.Equal(t, constants.TaskStatusSubmitted, submitted.Status)
	assert.True(t, strings.HasPrefix(submitted.CurrentFileRef, "local://"), submitted.CurrentFileRef)

	stored, err := f.storage.Open(context.Background(), submitted.CurrentFileRef)
	require.NoError(t, err)
	content, err := io.ReadAll(stored)
	require.NoError(t, err)
	require.NoError(t, stored.Close())
	assert.Equal(t, "pdf bytes", string(content))

	rec = f.do(t, http.MethodPost, "/tasks/"+id+"/validate", "u2", map[string]string{"comment": "looks good"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/tasks/"+id+"/finalize", "root", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, constants.TaskStatusFinalized, decode[domain.Task](t, rec).Status)

	rec = f.do(t, http.MethodGet, "/tasks/"+id+"/history", "u3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[[]domain.HistoryEntry](t, rec)
	require.Len(t, history, 5)
	assert.Equal(t, constants.ActionFinalized, history[4].ActionType)

	rec = f.do(t, http.MethodGet, "/tasks/"+id+"/verify", "u3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[verifyResponse](t, rec).Verified)
}

func TestJSONSubmitWithReference(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createTask(t)

	rec := f.do(t, http.MethodPost, "/tasks/"+id+"/submit", "u1", map[string]string{
		"file_ref":  "s3://deliverables/proj-1/t-1/report.pdf",
		"file_name": "report.pdf",
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "report.pdf", decode[domain.Task](t, rec).CurrentFileName)
}

func TestErrorMapping(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createTask(t)
	require.Equal(t, http.StatusOK, f.upload(t, "/tasks/"+id+"/submit", "u1", "a.txt", "x", "").Code)

	t.Run("reject without comment is 422", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/tasks/"+id+"/reject", "u2", map[string]string{})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "validation", decode[errorResponse](t, rec).Error)
	})

	t.Run("stranger is 403", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/tasks/"+id+"/validate", "u9", nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("second decision is 409 with current status", func(t *testing.T) {
		require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/tasks/"+id+"/validate", "u2", nil).Code)

		rec := f.do(t, http.MethodPost, "/tasks/"+id+"/reject", "u3", map[string]string{"comment": "too late"})
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, constants.TaskStatusValidated, decode[errorResponse](t, rec).CurrentStatus)
	})

	t.Run("unknown task is 404", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/tasks/nope", "u1", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("duplicate create is 409", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/tasks", "root", map[string]any{
			"id": id, "project_id": "proj-1", "label": "again", "assignee": "u1", "validators": []string{"u2"},
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("bad date is 422", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/tasks", "root", map[string]any{
			"project_id": "proj-1", "label": "x", "assignee": "u1", "validators": []string{"u2"},
			"deadline": "next friday",
		})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("unknown field is 422", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/tasks/"+id+"/finalize", "root", map[string]string{"status": "finalized"})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestUploadFailureIs503AndLeavesTask(t *testing.T) {
	f := newAPIFixture(t, task.WithUploader(failingUploader{}))
	id := f.createTask(t)

	rec := f.upload(t, "/tasks/"+id+"/submit", "u1", "a.txt", "x", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("Retry-After"))
	assert.True(t, decode[errorResponse](t, rec).Retryable)

	rec = f.do(t, http.MethodGet, "/tasks/"+id, "u1", nil)
	assert.Equal(t, constants.TaskStatusAssigned, decode[domain.Task](t, rec).Status)
}

func TestSubmitWithoutFileIs422(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createTask(t)

	rec := f.upload(t, "/tasks/"+id+"/submit", "u1", "", "", "no file")

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestListAndView(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createTask(t)

	rec := f.do(t, http.MethodGet, "/tasks?validator=u2&status=assigned", "u2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tasks := decode[[]domain.Task](t, rec)
	require.Len(t, tasks, 1)
	assert.Equal(t, id, tasks[0].ID)

	rec = f.do(t, http.MethodGet, "/tasks?status=lost", "u2", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(t, http.MethodGet, "/tasks?project=other", "u2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/tasks/"+id+"/view", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[task.View](t, rec)
	assert.ElementsMatch(t,
		[]constants.Transition{constants.TransitionStart, constants.TransitionSubmit}, view.Allowed)
	assert.Equal(t, 8, view.Derived.Deadline.RemainingDays)
}

func TestReassignOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createTask(t)

	rec := f.do(t, http.MethodPut, "/tasks/"+id+"/assignment", "root", map[string]any{
		"assignee": "u4", "validators": []string{"u2"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	reassigned := decode[domain.Task](t, rec)
	assert.Equal(t, "u4", reassigned.Assignee)
	require.NotNil(t, reassigned.Deadline, "omitted deadlines are kept")
	assert.Equal(t, "2026-03-10", reassigned.Deadline.Format(constants.DateLayout))
	require.NotNil(t, reassigned.ValidationDeadline)

	rec = f.do(t, http.MethodPut, "/tasks/"+id+"/assignment", "root", map[string]any{
		"assignee": "u4", "validators": []string{"u2"}, "clear_validation_deadline": true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Nil(t, decode[domain.Task](t, rec).ValidationDeadline)

	rec = f.do(t, http.MethodPut, "/tasks/"+id+"/assignment", "u1", map[string]any{
		"assignee": "u1", "validators": []string{"u2"},
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.createTask(t)

	rec := f.do(t, http.MethodGet, "/metrics", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "taskreview_tasks_created_total 1")
}

func TestCredentialFrom(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	req.Header.Set(ActorHeader, "u1")
	assert.Equal(t, "u1", credentialFrom(req))

	req.Header.Set("Authorization", "Bearer abc.def.ghi")
	assert.Equal(t, "abc.def.ghi", credentialFrom(req))
}

func TestBearerTokenWithJWTProvider(t *testing.T) {
	secret := strings.Repeat("s", 32)
	provider, err := identity.NewJWTProvider(secret, "taskreview", nil)
	require.NoError(t, err)
	token, err := provider.Issue("u1", false, time.Hour)
	require.NoError(t, err)

	svc := task.NewService(task.NewMemoryStore())
	server := New(svc, provider)

	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/tasks", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
