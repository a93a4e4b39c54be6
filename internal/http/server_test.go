package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"tradehub-admin/internal/cache"
	"tradehub-admin/internal/config"
	"tradehub-admin/internal/models"
	"tradehub-admin/internal/realtime"
	"tradehub-admin/internal/services"
	"tradehub-admin/internal/session"

	qt "github.com/frankban/quicktest"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) *Server {
	cfg := config.Config{
		JWTSecret:        "test-secret-0123456789",
		JWTIssuer:        "tradehub-test",
		AccessTTL:        time.Hour,
		DefaultPageSize:  10,
		MediaStoragePath: t.TempDir(),
		MaxUploadBytes:   1 << 20,
	}
	return NewServer(nil, cfg, cache.New(time.Minute), session.NewManager(time.Hour), realtime.NewHub(zap.NewNop()), nil)
}

func loginAs(c *qt.C, s *Server, role string) (string, *session.Session) {
	sess := s.Sessions.Start("user-"+role, role+"@example.com", role)
	token, _, err := s.Tokens.CreateAccessToken(sess.UserID, sess.Email, role, sess.ID)
	c.Assert(err, qt.IsNil)
	return token, sess
}

func do(s *Server, method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Router(req.Context()).ServeHTTP(rec, req)
	return rec
}

func seedBrokers(s *Server, n int) {
	items := make([]models.Broker, 0, n)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= n; i++ {
		items = append(items, models.Broker{
			ID:        fmt.Sprintf("b%02d", i),
			Name:      fmt.Sprintf("Broker %02d", i),
			IsVisible: i%2 == 0,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
	}
	s.Cache.Set("brokers", items)
}

type pageBody struct {
	Items      []map[string]any `json:"items"`
	Total      int              `json:"total"`
	Page       int              `json:"page"`
	PageSize   int              `json:"pageSize"`
	TotalPages int              `json:"totalPages"`
	Accepted   bool             `json:"accepted"`
	State      struct {
		Search     string `json:"search"`
		SortColumn string `json:"sortColumn"`
		SortDir    string `json:"sortDir"`
		Page       int    `json:"page"`
		PageInput  string `json:"pageInput"`
	} `json:"state"`
}

func decodePage(c *qt.C, rec *httptest.ResponseRecorder) pageBody {
	c.Assert(rec.Code, qt.Equals, http.StatusOK, qt.Commentf("body: %s", rec.Body.String()))
	var page pageBody
	c.Assert(json.Unmarshal(rec.Body.Bytes(), &page), qt.IsNil)
	return page
}

func TestHealth(t *testing.T) {
	c := qt.New(t)
	rec := do(newTestServer(t), http.MethodGet, "/healthz", "", "")
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	c.Assert(rec.Body.String(), qt.Contains, `"status":"ok"`)
}

func TestAdminRequiresToken(t *testing.T) {
	c := qt.New(t)
	s := newTestServer(t)
	c.Assert(do(s, http.MethodGet, "/api/admin/brokers", "", "").Code, qt.Equals, http.StatusUnauthorized)
	c.Assert(do(s, http.MethodGet, "/api/admin/brokers", "not-a-token", "").Code, qt.Equals, http.StatusUnauthorized)
}

func TestEndedSessionRejectsToken(t *testing.T) {
	c := qt.New(t)
	s := newTestServer(t)
	seedBrokers(s, 3)
	token, sess := loginAs(c, s, services.RoleAdmin)
	c.Assert(do(s, http.MethodGet, "/api/admin/brokers", token, "").Code, qt.Equals, http.StatusOK)

	rec := do(s, http.MethodPost, "/api/auth/logout", token, "")
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	_, ok := s.Sessions.Get(sess.ID)
	c.Assert(ok, qt.IsFalse)
	c.Assert(do(s, http.MethodGet, "/api/admin/brokers", token, "").Code, qt.Equals, http.StatusUnauthorized)
}

func TestUnknownTable(t *testing.T) {
	c := qt.New(t)
	s := newTestServer(t)
	token, _ := loginAs(c, s, services.RoleAdmin)
	rec := do(s, http.MethodGet, "/api/admin/accounts", token, "")
	c.Assert(rec.Code, qt.Equals, http.StatusNotFound)
	c.Assert(rec.Body.String(), qt.Contains, "Unknown table")
}

func TestMalformedRecordID(t *testing.T) {
	c := qt.New(t)
	s := newTestServer(t)
	token, _ := loginAs(c, s, services.RoleAdmin)

	c.Assert(do(s, http.MethodGet, "/api/admin/brokers/not-a-uuid", token, "").Code, qt.Equals, http.StatusNotFound)
	c.Assert(do(s, http.MethodPut, "/api/admin/brokers/not-a-uuid", token, `{"name": "Saxo"}`).Code, qt.Equals, http.StatusNotFound)
	c.Assert(do(s, http.MethodDelete, "/api/admin/brokers/not-a-uuid", token, "").Code, qt.Equals, http.StatusNotFound)
	c.Assert(do(s, http.MethodGet, "/api/admin/images?table=brokers&record=nope", token, "").Code, qt.Equals, http.StatusBadRequest)
}

func TestCreateValidationFailure(t *testing.T) {
	c := qt.New(t)
	s := newTestServer(t)
	token, _ := loginAs(c, s, services.RoleEditor)

	rec := do(s, http.MethodPost, "/api/admin/brokers", token, `{"name": "", "established_in": ""}`)
	c.Assert(rec.Code, qt.Equals, http.StatusUnprocessableEntity)
	var body ValidationResponse
	c.Assert(json.Unmarshal(rec.Body.Bytes(), &body), qt.IsNil)
	c.Assert(body.Message, qt.Equals, "Validation failed")
	c.Assert(body.Errors["name"], qt.Not(qt.Equals), "")
	_, hasYear := body.Errors["established_in"]
	c.Assert(hasYear, qt.IsFalse)
}

func TestInvalidPayload(t *testing.T) {
	c := qt.New(t)
	s := newTestServer(t)
	token, _ := loginAs(c, s, services.RoleAdmin)
	rec := do(s, http.MethodPost, "/api/admin/brokers", token, `{"name":`)
	c.Assert(rec.Code, qt.Equals, http.StatusBadRequest)
}

func TestWritePermissions(t *testing.T) {
	c := qt.New(t)
	s := newTestServer(t)
	viewer, _ := loginAs(c, s, services.RoleViewer)
	editor, _ := loginAs(c, s, services.RoleEditor)

	c.Assert(do(s, http.MethodPost, "/api/admin/posts", viewer, `{"title": "x"}`).Code, qt.Equals, http.StatusForbidden)
	c.Assert(do(s, http.MethodDelete, "/api/admin/posts/p1", viewer, "").Code, qt.Equals, http.StatusForbidden)
	c.Assert(do(s, http.MethodPost, "/api/admin/users", editor, `{"email": "a@b.co"}`).Code, qt.Equals, http.StatusForbidden)
}

func TestCannotDeleteSelf(t *testing.T) {
	c := qt.New(t)
	s := newTestServer(t)
	token, sess := loginAs(c, s, services.RoleAdmin)
	rec := do(s, http.MethodDelete, "/api/admin/users/"+sess.UserID, token, "")
	c.Assert(rec.Code, qt.Equals, http.StatusBadRequest)
}

func TestUserChangesEndStaleSessions(t *testing.T) {
	tests := []struct {
		name  string
		user  func(id string) models.User
		alive bool
	}{
		{name: "demoted", user: func(id string) models.User {
			return models.User{ID: id, Role: services.RoleViewer, Status: "active"}
		}, alive: false},
		{name: "suspended", user: func(id string) models.User {
			return models.User{ID: id, Role: services.RoleAdmin, Status: "suspended"}
		}, alive: false},
		{name: "unchanged", user: func(id string) models.User {
			return models.User{ID: id, Role: services.RoleAdmin, Status: "active"}
		}, alive: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)
			s := newTestServer(t)
			token, sess := loginAs(c, s, services.RoleAdmin)

			req := httptest.NewRequest(http.MethodPut, "/api/admin/users/"+sess.UserID, nil)
			s.syncUserSessions(req, tt.user(sess.UserID))

			_, ok := s.Sessions.Get(sess.ID)
			c.Assert(ok, qt.Equals, tt.alive)

			// A live admin session reaches validation; an ended one is refused.
			want := http.StatusUnauthorized
			if tt.alive {
				want = http.StatusUnprocessableEntity
			}
			c.Assert(do(s, http.MethodPost, "/api/admin/users", token, `{}`).Code, qt.Equals, want)
		})
	}
}

func TestListRecordsFromQuery(t *testing.T) {
	c := qt.New(t)
	s := newTestServer(t)
	seedBrokers(s, 25)
	token, _ := loginAs(c, s, services.RoleViewer)

	page := decodePage(c, do(s, http.MethodGet, "/api/admin/brokers?sort=name&dir=desc&pageSize=5&page=2", token, ""))
	c.Assert(page.TotalPages, qt.Equals, 5)
	c.Assert(page.Page, qt.Equals, 2)
	c.Assert(page.Items, qt.HasLen, 5)
	c.Assert(page.Items[0]["name"], qt.Equals, "Broker 20")

	page = decodePage(c, do(s, http.MethodGet, "/api/admin/brokers?filter=visible&page=99", token, ""))
	c.Assert(page.Total, qt.Equals, 12)
	c.Assert(page.TotalPages, qt.Equals, 2)
	c.Assert(page.Page, qt.Equals, 2)
}

func TestSessionView(t *testing.T) {
	c := qt.New(t)
	s := newTestServer(t)
	seedBrokers(s, 25)
	token, _ := loginAs(c, s, services.RoleAdmin)

	page := decodePage(c, do(s, http.MethodPatch, "/api/admin/views/brokers", token, `{"page": 3}`))
	c.Assert(page.Accepted, qt.IsTrue)
	c.Assert(page.TotalPages, qt.Equals, 3)
	c.Assert(page.Page, qt.Equals, 3)
	c.Assert(page.Items, qt.HasLen, 5)

	page = decodePage(c, do(s, http.MethodGet, "/api/admin/views/brokers", token, ""))
	c.Assert(page.Page, qt.Equals, 3)

	page = decodePage(c, do(s, http.MethodPatch, "/api/admin/views/brokers", token, `{"page": 0}`))
	c.Assert(page.Accepted, qt.IsFalse)
	c.Assert(page.Page, qt.Equals, 3)

	page = decodePage(c, do(s, http.MethodPatch, "/api/admin/views/brokers", token, `{"next": true}`))
	c.Assert(page.Accepted, qt.IsFalse)
	c.Assert(page.Page, qt.Equals, 3)

	page = decodePage(c, do(s, http.MethodPatch, "/api/admin/views/brokers", token, `{"pageInput": "9"}`))
	c.Assert(page.Accepted, qt.IsFalse)
	c.Assert(page.Page, qt.Equals, 3)
	c.Assert(page.State.PageInput, qt.Equals, "3")

	page = decodePage(c, do(s, http.MethodPatch, "/api/admin/views/brokers", token, `{"search": "  broker   1 "}`))
	c.Assert(page.State.Search, qt.Equals, "broker 1")
	c.Assert(page.Page, qt.Equals, 1)
	c.Assert(page.Total, qt.Equals, 10)

	page = decodePage(c, do(s, http.MethodPatch, "/api/admin/views/brokers", token, `{"toggleSort": "name"}`))
	c.Assert(page.State.SortColumn, qt.Equals, "name")
	c.Assert(page.State.SortDir, qt.Equals, "asc")
	page = decodePage(c, do(s, http.MethodPatch, "/api/admin/views/brokers", token, `{"toggleSort": "name"}`))
	c.Assert(page.State.SortDir, qt.Equals, "desc")
	c.Assert(page.Items[0]["name"], qt.Equals, "Broker 19")

	rec := do(s, http.MethodDelete, "/api/admin/views/brokers", token, "")
	c.Assert(rec.Code, qt.Equals, http.StatusNoContent)
	page = decodePage(c, do(s, http.MethodGet, "/api/admin/views/brokers", token, ""))
	c.Assert(page.State.Search, qt.Equals, "")
	c.Assert(page.Total, qt.Equals, 25)
}

func TestViewsAreIsolatedPerSession(t *testing.T) {
	c := qt.New(t)
	s := newTestServer(t)
	seedBrokers(s, 25)
	first, _ := loginAs(c, s, services.RoleAdmin)
	second, _ := loginAs(c, s, services.RoleEditor)

	decodePage(c, do(s, http.MethodPatch, "/api/admin/views/brokers", first, `{"page": 2}`))
	page := decodePage(c, do(s, http.MethodGet, "/api/admin/views/brokers", second, ""))
	c.Assert(page.Page, qt.Equals, 1)
}

func TestLoginValidation(t *testing.T) {
	c := qt.New(t)
	s := newTestServer(t)
	rec := do(s, http.MethodPost, "/api/auth/login", "", `{}`)
	c.Assert(rec.Code, qt.Equals, http.StatusUnprocessableEntity)
	var body ValidationResponse
	c.Assert(json.Unmarshal(rec.Body.Bytes(), &body), qt.IsNil)
	c.Assert(body.Errors, qt.DeepEquals, map[string]string{
		"email":    "Email is required",
		"password": "Password is required",
	})
}

func TestMediaContent(t *testing.T) {
	c := qt.New(t)
	s := newTestServer(t)
	_, _, err := s.Images.Store.Save("brokers", "rec-1/logo.png", strings.NewReader("png-bytes"))
	c.Assert(err, qt.IsNil)

	rec := do(s, http.MethodGet, "/api/media/brokers/rec-1/logo.png", "", "")
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	c.Assert(rec.Body.String(), qt.Equals, "png-bytes")

	rec = do(s, http.MethodGet, "/api/media/brokers/rec-1/missing.png", "", "")
	c.Assert(rec.Code, qt.Equals, http.StatusNotFound)
}

func TestEventsRequiresLiveSession(t *testing.T) {
	c := qt.New(t)
	s := newTestServer(t)
	token, sess := loginAs(c, s, services.RoleViewer)
	s.Sessions.End(sess.ID)
	rec := do(s, http.MethodGet, "/ws/events?token="+token, "", "")
	c.Assert(rec.Code, qt.Equals, http.StatusUnauthorized)
}

func TestEventsClosedWhenIdleSessionEnds(t *testing.T) {
	c := qt.New(t)
	s := newTestServer(t)
	s.SessionCheck = 10 * time.Millisecond
	token, sess := loginAs(c, s, services.RoleViewer)

	srv := httptest.NewServer(s.Router(context.Background()))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	c.Assert(err, qt.IsNil)
	defer conn.Close()
	c.Assert(waitFor(func() bool { return s.Hub.Len() == 1 }), qt.IsTrue)

	s.Sessions.End(sess.ID)

	c.Assert(conn.SetReadDeadline(time.Now().Add(2*time.Second)), qt.IsNil)
	_, _, err = conn.ReadMessage()
	c.Assert(websocket.IsCloseError(err, websocket.ClosePolicyViolation), qt.IsTrue, qt.Commentf("got %v", err))
	c.Assert(waitFor(func() bool { return s.Hub.Len() == 0 }), qt.IsTrue)
}

func TestWatchSession(t *testing.T) {
	c := qt.New(t)

	var checks atomic.Int32
	ended := make(chan struct{})
	go watchSession(make(chan struct{}), time.Millisecond, func() bool {
		return checks.Add(1) < 3
	}, func() { close(ended) })
	select {
	case <-ended:
	case <-time.After(2 * time.Second):
		c.Fatal("session end not noticed")
	}
	c.Assert(checks.Load(), qt.Equals, int32(3))

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		watchSession(done, time.Hour, func() bool { return true }, func() { c.Error("ended called") })
		close(stopped)
	}()
	close(done)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		c.Fatal("watcher did not stop")
	}
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestMapServiceError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", &services.ValidationError{Table: "posts", Fields: map[string]string{"title": "required"}}, http.StatusUnprocessableEntity},
		{"network", &services.RemoteError{Kind: services.RemoteNetwork}, http.StatusServiceUnavailable},
		{"constraint", fmt.Errorf("wrapped: %w", &services.RemoteError{Kind: services.RemoteConstraint}), http.StatusConflict},
		{"permission", &services.RemoteError{Kind: services.RemotePermission}, http.StatusForbidden},
		{"not found", &services.RemoteError{Kind: services.RemoteNotFound}, http.StatusNotFound},
		{"invalid value", &services.RemoteError{Kind: services.RemoteInvalid}, http.StatusBadRequest},
		{"service", services.ErrBadRequest("nope"), http.StatusBadRequest},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := qt.New(t)
			rec := httptest.NewRecorder()
			c.Assert(mapServiceError(rec, test.err), qt.IsTrue)
			c.Assert(rec.Code, qt.Equals, test.status)
		})
	}
	qt.Assert(t, mapServiceError(httptest.NewRecorder(), errors.New("boom")), qt.IsFalse)
	qt.Assert(t, mapServiceError(httptest.NewRecorder(), nil), qt.IsFalse)
}

func TestCanWrite(t *testing.T) {
	c := qt.New(t)
	c.Assert(canWrite(services.RoleAdmin, "users"), qt.IsTrue)
	c.Assert(canWrite(services.RoleEditor, "posts"), qt.IsTrue)
	c.Assert(canWrite(services.RoleEditor, "users"), qt.IsFalse)
	c.Assert(canWrite(services.RoleViewer, "posts"), qt.IsFalse)
	c.Assert(canWrite("", "posts"), qt.IsFalse)
}
