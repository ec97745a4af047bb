package reservation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/clinicq/clinicq/internal/domain/schedule"
	"github.com/clinicq/clinicq/internal/platform/apierror"
	"github.com/clinicq/clinicq/internal/platform/auth"
)

func newTestHandler() (*Handler, *mockRepo, *echo.Echo) {
	svc, repo, _ := newTestService()
	return NewHandler(svc, testCatalog()), repo, echo.New()
}

func newRequest(method, target, body string, sess *auth.Session) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if sess != nil {
		req = req.WithContext(auth.WithSession(context.Background(), sess))
	}
	return req
}

func expectAPIError(t *testing.T, err error, status int, code string) *apierror.Error {
	t.Helper()
	var apiErr *apierror.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *apierror.Error, got %T (%v)", err, err)
	}
	if apiErr.Status != status || apiErr.Code != code {
		t.Errorf("expected %d %s, got %d %s", status, code, apiErr.Status, apiErr.Code)
	}
	return apiErr
}

func TestHandler_Register(t *testing.T) {
	h, _, e := newTestHandler()
	req := newRequest(http.MethodPost, "/", `{"patient_id":7,"poly_id":1,"schedule_id":20,"bpjs":true}`, reception)
	rec := httptest.NewRecorder()

	if err := h.Register(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var got Reservation
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.Status != "WAITING" || got.Queue == nil || got.Queue.QueueNumber != 1 || !got.BPJS {
		t.Errorf("unexpected reservation: %+v", got)
	}
}

func TestHandler_Register_NoSession(t *testing.T) {
	h, _, e := newTestHandler()
	req := newRequest(http.MethodPost, "/", `{"patient_id":7,"poly_id":1,"schedule_id":20}`, nil)
	err := h.Register(e.NewContext(req, httptest.NewRecorder()))

	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
}

func TestHandler_Register_QuotaExceeded(t *testing.T) {
	h, repo, e := newTestHandler()
	repo.schedules[20].Quota = intPtr(0)
	req := newRequest(http.MethodPost, "/", `{"patient_id":7,"poly_id":1,"schedule_id":20}`, reception)

	err := h.Register(e.NewContext(req, httptest.NewRecorder()))
	expectAPIError(t, err, http.StatusConflict, schedule.CodeQuotaExceeded)
}

func TestHandler_Register_Validation(t *testing.T) {
	h, _, e := newTestHandler()
	req := newRequest(http.MethodPost, "/", `{"poly_id":1}`, reception)

	err := h.Register(e.NewContext(req, httptest.NewRecorder()))
	apiErr := expectAPIError(t, err, http.StatusBadRequest, apierror.CodeValidation)
	if apiErr.Fields["patient_id"] != "required" {
		t.Errorf("expected patient_id to be reported, got %v", apiErr.Fields)
	}
}

func transitionContext(e *echo.Echo, sess *auth.Session, id, action string) (echo.Context, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodPost, "/", "", sess), rec)
	c.SetParamNames("id", "action")
	c.SetParamValues(id, action)
	return c, rec
}

func TestHandler_Transition(t *testing.T) {
	h, repo, e := newTestHandler()
	waiting(repo, 1, 0)

	c, rec := transitionContext(e, nurse, "1", "anamnesa")
	if err := h.Transition(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got Result
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.From != "WAITING" || got.To != "ANAMNESA" || got.AutoNoShow {
		t.Errorf("unexpected result: %+v", got)
	}
}

func TestHandler_Transition_Conflict(t *testing.T) {
	h, repo, e := newTestHandler()
	waiting(repo, 1, 0)

	c, _ := transitionContext(e, doctor, "1", "with-doctor")
	apiErr := expectAPIError(t, h.Transition(c), http.StatusConflict, apierror.CodeInvalidTransition)
	if apiErr.CurrentStatus != "WAITING" {
		t.Errorf("expected current_status WAITING, got %q", apiErr.CurrentStatus)
	}
}

func TestHandler_Transition_Errors(t *testing.T) {
	h, repo, e := newTestHandler()
	waiting(repo, 1, 0)
	repo.put(&Reservation{PolyID: 1, ScheduleID: 20, StatusID: 3})

	c, _ := transitionContext(e, nurse, "1", "teleport")
	expectAPIError(t, h.Transition(c), http.StatusNotFound, apierror.CodeNotFound)

	c, _ = transitionContext(e, nurse, "abc", "anamnesa")
	expectAPIError(t, h.Transition(c), http.StatusBadRequest, apierror.CodeBadRequest)

	c, _ = transitionContext(e, nurse, "404", "anamnesa")
	expectAPIError(t, h.Transition(c), http.StatusNotFound, apierror.CodeNotFound)

	c, _ = transitionContext(e, nurse, "2", "anamnesa")
	expectAPIError(t, h.Transition(c), http.StatusUnprocessableEntity, apierror.CodeMissingQueue)

	c, _ = transitionContext(e, reception, "1", "done")
	var he *echo.HTTPError
	if err := h.Transition(c); !errors.As(err, &he) || he.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %v", err)
	}
}

func TestHandler_CallNext(t *testing.T) {
	h, repo, e := newTestHandler()
	waiting(repo, 1, 0)

	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodPost, "/?station=anamnesa", "", nurse), rec)
	c.SetParamNames("id")
	c.SetParamValues("1")
	if err := h.CallNext(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"to":"ANAMNESA"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}

	c = e.NewContext(newRequest(http.MethodPost, "/?station=anamnesa", "", nurse), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("1")
	expectAPIError(t, h.CallNext(c), http.StatusNotFound, apierror.CodeNotFound)

	c = e.NewContext(newRequest(http.MethodPost, "/?station=lab", "", nurse), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("1")
	expectAPIError(t, h.CallNext(c), http.StatusBadRequest, apierror.CodeBadRequest)
}

func TestHandler_List(t *testing.T) {
	h, repo, e := newTestHandler()
	for i := 1; i <= 3; i++ {
		waiting(repo, i, 0)
	}
	repo.put(&Reservation{PolyID: 2, ScheduleID: 21, StatusID: 11, Queue: &Queue{QueueNumber: 1}})

	rec := httptest.NewRecorder()
	req := newRequest(http.MethodGet, "/api/v1/reservations?poly_id=1&status=WAITING&limit=2", "", nil)
	if err := h.List(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var body struct {
		Data    []Reservation `json:"data"`
		Total   int           `json:"total"`
		HasMore bool          `json:"has_more"`
		Links   struct {
			Next string `json:"next"`
		} `json:"links"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.Total != 3 || len(body.Data) != 2 || !body.HasMore {
		t.Errorf("unexpected page: total %d, %d items, has_more %v", body.Total, len(body.Data), body.HasMore)
	}
	if body.Data[0].Status != "WAITING" {
		t.Errorf("expected status names resolved, got %q", body.Data[0].Status)
	}
	if !strings.Contains(body.Links.Next, "offset=2") || !strings.Contains(body.Links.Next, "status=WAITING") {
		t.Errorf("unexpected next link %q", body.Links.Next)
	}
}

func TestHandler_List_UnknownStatus(t *testing.T) {
	h, _, e := newTestHandler()
	req := newRequest(http.MethodGet, "/?status=PAID", "", nil)
	expectAPIError(t, h.List(e.NewContext(req, httptest.NewRecorder())), http.StatusBadRequest, apierror.CodeBadRequest)
}

func TestHandler_QueueStatus(t *testing.T) {
	h, repo, e := newTestHandler()
	now := testNow
	repo.put(&Reservation{PolyID: 2, ScheduleID: 21, StatusID: 9, Queue: &Queue{QueueNumber: 8, NumberOfCalls: 1, CallTime: &now}})

	rec := httptest.NewRecorder()
	if err := h.QueueStatus(e.NewContext(newRequest(http.MethodGet, "/", "", nil), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"anak":{"queue_number_anamnesa":null,"queue_number_with_doctor":null},` +
		`"gigi":{"queue_number_anamnesa":null,"queue_number_with_doctor":null},` +
		`"umum":{"queue_number_anamnesa":null,"queue_number_with_doctor":8}}`
	if strings.TrimSpace(rec.Body.String()) != want {
		t.Errorf("got %s\nwant %s", rec.Body.String(), want)
	}
}
