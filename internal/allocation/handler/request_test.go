package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "concierge/pkg/errors"
	"concierge/pkg/logger"
	"concierge/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type mockAllocationService struct {
	acceptFunc func(ctx context.Context, id string, in *model.AcceptInput) error
	refuseFunc func(ctx context.Context, id string, in *model.RefuseInput) error
	listFunc   func(ctx context.Context, q *model.RequestQuery) (*model.RequestPage, error)
	getFunc    func(ctx context.Context, id string) (*model.RequestDetail, error)
}

func (m *mockAllocationService) Accept(ctx context.Context, id string, in *model.AcceptInput) error {
	if m.acceptFunc != nil {
		return m.acceptFunc(ctx, id, in)
	}
	return nil
}

func (m *mockAllocationService) Refuse(ctx context.Context, id string, in *model.RefuseInput) error {
	if m.refuseFunc != nil {
		return m.refuseFunc(ctx, id, in)
	}
	return nil
}

func (m *mockAllocationService) List(ctx context.Context, q *model.RequestQuery) (*model.RequestPage, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, q)
	}
	return &model.RequestPage{Requests: []*model.StepRequest{}}, nil
}

func (m *mockAllocationService) Get(ctx context.Context, id string) (*model.RequestDetail, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, id)
	}
	return &model.RequestDetail{}, nil
}

func (m *mockAllocationService) Broadcast(ctx context.Context, in *model.BroadcastInput) ([]*model.StepRequest, error) {
	return nil, nil
}

func (m *mockAllocationService) Expire(ctx context.Context) (int, error) { return 0, nil }

func (m *mockAllocationService) Reconcile(ctx context.Context, journeyID string) error { return nil }

func (m *mockAllocationService) ReconcileAll(ctx context.Context) (int, error) { return 0, nil }

func newRouter(svc *mockAllocationService) *httprouter.Router {
	router := httprouter.New()
	NewRequestHandler(svc, logger.Discard()).RegisterRoutes(router)
	return router
}

func serve(router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestAccept_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"success", nil, http.StatusOK, ""},
		{"superseded", apperrors.Superseded("another vendor already accepted this request"), http.StatusConflict, apperrors.CodeSuperseded},
		{"already processed", apperrors.AlreadyProcessed("Request", model.RequestRefused), http.StatusConflict, apperrors.CodeAlreadyProcessed},
		{"not found", apperrors.NotFoundWithID("Request", "r1"), http.StatusNotFound, apperrors.CodeNotFound},
		{"store failure", apperrors.Internal("Failed to accept request", context.DeadlineExceeded), http.StatusInternalServerError, apperrors.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newRouter(&mockAllocationService{
				acceptFunc: func(ctx context.Context, id string, in *model.AcceptInput) error { return tt.err },
			})

			rec := serve(router, http.MethodPost, "/api/v1/requests/r1/accept", "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}

			if tt.err == nil {
				var ok struct{ OK bool }
				if err := json.Unmarshal(rec.Body.Bytes(), &ok); err != nil || !ok.OK {
					t.Errorf("expected {ok:true}, got %s", rec.Body.String())
				}
				return
			}

			var body struct {
				Error string `json:"error"`
				Code  string `json:"code"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid error body: %v", err)
			}
			if body.Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, body.Code)
			}
			if body.Error == "" {
				t.Error("expected error message")
			}
		})
	}
}

func TestAccept_PassesBody(t *testing.T) {
	var gotID string
	var got *model.AcceptInput
	router := newRouter(&mockAllocationService{
		acceptFunc: func(ctx context.Context, id string, in *model.AcceptInput) error {
			gotID, got = id, in
			return nil
		},
	})

	rec := serve(router, http.MethodPost, "/api/v1/requests/abc/accept", `{"proposed_price": 120.5, "response_note": "See you"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotID != "abc" {
		t.Errorf("expected id abc, got %s", gotID)
	}
	if got.ProposedPrice == nil || *got.ProposedPrice != 120.5 {
		t.Errorf("unexpected price: %v", got.ProposedPrice)
	}
	if got.ResponseNote == nil || *got.ResponseNote != "See you" {
		t.Errorf("unexpected note: %v", got.ResponseNote)
	}
}

func TestAccept_MalformedBody(t *testing.T) {
	called := false
	router := newRouter(&mockAllocationService{
		acceptFunc: func(ctx context.Context, id string, in *model.AcceptInput) error {
			called = true
			return nil
		},
	})

	rec := serve(router, http.MethodPost, "/api/v1/requests/abc/accept", `{"proposed_price": "cheap"`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if called {
		t.Error("service should not be called")
	}
}

func TestRefuse(t *testing.T) {
	var note string
	router := newRouter(&mockAllocationService{
		refuseFunc: func(ctx context.Context, id string, in *model.RefuseInput) error {
			if in.ResponseNote != nil {
				note = *in.ResponseNote
			}
			return nil
		},
	})

	rec := serve(router, http.MethodPost, "/api/v1/requests/abc/refuse", `{"response_note": "Fully booked"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if note != "Fully booked" {
		t.Errorf("expected note to reach service, got %q", note)
	}
}

func TestList_QueryParameters(t *testing.T) {
	tests := []struct {
		name        string
		query       string
		wantStatus  int
		wantLimit   int
		wantOffset  int64
		wantStatusQ string
		wantEst     string
	}{
		{name: "defaults", query: "", wantStatus: http.StatusOK, wantLimit: 20},
		{name: "filters", query: "?status=pending&establishment_id=est-a&limit=5&offset=10", wantStatus: http.StatusOK, wantLimit: 5, wantOffset: 10, wantStatusQ: "pending", wantEst: "est-a"},
		{name: "limit capped", query: "?limit=1000", wantStatus: http.StatusOK, wantLimit: 100},
		{name: "bad limit", query: "?limit=abc", wantStatus: http.StatusBadRequest},
		{name: "bad offset", query: "?offset=-x", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *model.RequestQuery
			router := newRouter(&mockAllocationService{
				listFunc: func(ctx context.Context, q *model.RequestQuery) (*model.RequestPage, error) {
					got = q
					return &model.RequestPage{Requests: []*model.StepRequest{}, Limit: q.Limit, Offset: q.Offset}, nil
				},
			})

			rec := serve(router, http.MethodGet, "/api/v1/requests"+tt.query, "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			if got.Limit != tt.wantLimit || got.Offset != tt.wantOffset {
				t.Errorf("expected limit=%d offset=%d, got limit=%d offset=%d", tt.wantLimit, tt.wantOffset, got.Limit, got.Offset)
			}
			if got.Status != tt.wantStatusQ || got.EstablishmentID != tt.wantEst {
				t.Errorf("unexpected filters: %+v", got)
			}

			var body map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid body: %v", err)
			}
			if _, ok := body["requests"]; !ok {
				t.Errorf("expected requests key, got %s", rec.Body.String())
			}
		})
	}
}

func TestList_Forbidden(t *testing.T) {
	router := newRouter(&mockAllocationService{
		listFunc: func(ctx context.Context, q *model.RequestQuery) (*model.RequestPage, error) {
			return nil, apperrors.Forbidden("Not allowed to act for this establishment")
		},
	})

	rec := serve(router, http.MethodGet, "/api/v1/requests?establishment_id=other", "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

func TestGet(t *testing.T) {
	router := newRouter(&mockAllocationService{
		getFunc: func(ctx context.Context, id string) (*model.RequestDetail, error) {
			if id != "r1" {
				return nil, apperrors.NotFoundWithID("Request", id)
			}
			return &model.RequestDetail{
				Request: &model.StepRequest{ID: "r1"},
				Step:    &model.Step{ID: "s1"},
				Journey: &model.Journey{ID: "j1"},
			}, nil
		},
	})

	rec := serve(router, http.MethodGet, "/api/v1/requests/r1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var detail model.RequestDetail
	if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if detail.Step.ID != "s1" || detail.Journey.ID != "j1" {
		t.Errorf("unexpected detail: %+v", detail)
	}

	rec = serve(router, http.MethodGet, "/api/v1/requests/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}
