package api

import (
	"errors"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/mrz1836/taskreview/internal/constants"
	"github.com/mrz1836/taskreview/internal/domain"
	reviewerrors "github.com/mrz1836/taskreview/internal/errors"
	"github.com/mrz1836/taskreview/internal/task"
)

// multipartMemory is the part of a multipart form kept in memory; the rest spills to disk.
const multipartMemory = 8 << 20

// createRequest accepts deadlines as calendar dates.
// The outer Deadline fields shadow the embedded time fields during decoding.
type createRequest struct {
	task.CreateInput
	Deadline           string `json:"deadline,omitempty"`
	ValidationDeadline string `json:"validation_deadline,omitempty"`
}

// reassignRequest leaves a deadline untouched when it is omitted.
type reassignRequest struct {
	Assignee                string   `json:"assignee"`
	Validators              []string `json:"validators"`
	Deadline                string   `json:"deadline,omitempty"`
	ValidationDeadline      string   `json:"validation_deadline,omitempty"`
	ClearDeadline           bool     `json:"clear_deadline,omitempty"`
	ClearValidationDeadline bool     `json:"clear_validation_deadline,omitempty"`
}

type verifyResponse struct {
	TaskID   string `json:"task_id"`
	Verified bool   `json:"verified"`
	Problem  string `json:"problem,omitempty"`
}

// parseDate accepts YYYY-MM-DD or RFC 3339. Empty means no date.
func parseDate(field, value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil //nolint:nilnil // absent date is not an error
	}
	for _, layout := range []string{constants.DateLayout, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t, nil
		}
	}
	return nil, reviewerrors.Validationf("%s must be a date like 2006-01-02, got %q", field, value)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	in := req.CreateInput
	var err error
	if in.Deadline, err = parseDate("deadline", req.Deadline); err != nil {
		s.writeError(w, r, err)
		return
	}
	if in.ValidationDeadline, err = parseDate("validation_deadline", req.ValidationDeadline); err != nil {
		s.writeError(w, r, err)
		return
	}

	created, err := s.svc.Create(r.Context(), actorFrom(r.Context()), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/tasks/"+created.ID)
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := task.ListFilter{
		ProjectID: q.Get("project"),
		Assignee:  q.Get("assignee"),
		Validator: q.Get("validator"),
		Status:    constants.TaskStatus(q.Get("status")),
	}
	if filter.Status != "" && !filter.Status.IsKnown() {
		s.writeError(w, r, reviewerrors.Validationf("unknown status %q", filter.Status))
		return
	}

	tasks, err := s.svc.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []*domain.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	t, err := s.svc.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.svc.History(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.View(r.Context(), mux.Vars(r)["id"], actorFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	err := s.svc.Verify(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, verifyResponse{TaskID: id, Verified: true})
	case errors.Is(err, reviewerrors.ErrHistoryTampered):
		writeJSON(w, http.StatusOK, verifyResponse{TaskID: id, Problem: err.Error()})
	default:
		s.writeError(w, r, err)
	}
}

func (s *Server) handleReassign(w http.ResponseWriter, r *http.Request) {
	var req reassignRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	in := task.ReassignInput{
		Assignee:                req.Assignee,
		Validators:              req.Validators,
		ClearDeadline:           req.ClearDeadline,
		ClearValidationDeadline: req.ClearValidationDeadline,
	}
	var err error
	if in.Deadline, err = parseDate("deadline", req.Deadline); err != nil {
		s.writeError(w, r, err)
		return
	}
	if in.ValidationDeadline, err = parseDate("validation_deadline", req.ValidationDeadline); err != nil {
		s.writeError(w, r, err)
		return
	}

	t, err := s.svc.Reassign(r.Context(), mux.Vars(r)["id"], actorFrom(r.Context()), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	t, err := s.svc.Start(r.Context(), mux.Vars(r)["id"], actorFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// handleSubmit accepts either a multipart upload (field "file", optional
// "comment") or a JSON body referencing an artifact that is already stored.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	actor := actorFrom(r.Context())

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var in task.SubmitInput
		if err := decodeJSON(r, &in, false); err != nil {
			s.writeError(w, r, err)
			return
		}
		t, err := s.svc.Submit(r.Context(), id, actor, in)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, r, reviewerrors.Validationf("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		s.writeError(w, r, reviewerrors.Validationf("malformed multipart form: %v", err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, reviewerrors.Validationf("a file is required to submit"))
		return
	}
	defer func() { _ = file.Close() }()

	t, err := s.svc.SubmitUpload(r.Context(), id, actor, task.Upload{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
		Comment:     r.FormValue("comment"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleDecision(tr constants.Transition) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in task.DecisionInput
		if err := decodeJSON(r, &in, true); err != nil {
			s.writeError(w, r, err)
			return
		}

		id := mux.Vars(r)["id"]
		actor := actorFrom(r.Context())
		var (
			t   *domain.Task
			err error
		)
		switch tr {
		case constants.TransitionValidate:
			t, err = s.svc.Validate(r.Context(), id, actor, in)
		case constants.TransitionReject:
			t, err = s.svc.Reject(r.Context(), id, actor, in)
		default:
			t, err = s.svc.Finalize(r.Context(), id, actor, in)
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}
