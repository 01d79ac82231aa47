package auth

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type publishedEvent struct {
	event   string
	payload any
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *capturingPublisher) Publish(event string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{event: event, payload: payload})
}

func (p *capturingPublisher) all() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]publishedEvent, len(p.events))
	copy(out, p.events)
	return out
}

func newTestAuthRouter(t *testing.T) (*gin.Engine, *JWTService, *capturingPublisher) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	jwtSvc := NewJWTService("test-secret", 1)
	pub := &capturingPublisher{}
	h := NewHandler(nil, jwtSvc, pub, zap.NewNop())

	router := gin.New()
	router.GET("/api/auth/verify", h.Verify)
	router.POST("/api/auth/logout", h.Logout)
	return router, jwtSvc, pub
}

func TestVerifyRejectsMissingToken(t *testing.T) {
	router, _, pub := newTestAuthRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/verify", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if len(pub.all()) != 0 {
		t.Fatalf("published %d events for rejected request, want 0", len(pub.all()))
	}
}

func TestVerifyRejectsGarbageToken(t *testing.T) {
	router, _, _ := newTestAuthRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/verify", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestLogoutRejectsMissingToken(t *testing.T) {
	router, _, pub := newTestAuthRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if len(pub.all()) != 0 {
		t.Fatalf("published %d events for rejected logout, want 0", len(pub.all()))
	}
}

func TestLogoutPublishesUserLogout(t *testing.T) {
	router, jwtSvc, pub := newTestAuthRouter(t)

	userID := uuid.New()
	token, err := jwtSvc.Generate(userID, "viewer-1", "user")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", "test-agent")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, http.StatusOK, w.Body.String())
	}
	evts := pub.all()
	if len(evts) != 1 {
		t.Fatalf("published %d events, want 1", len(evts))
	}
	if evts[0].event != "user_logout" {
		t.Fatalf("event = %q, want %q", evts[0].event, "user_logout")
	}
	payload, ok := evts[0].payload.(map[string]any)
	if !ok {
		t.Fatalf("payload type = %T, want map[string]any", evts[0].payload)
	}
	if payload["user_id"] != userID.String() {
		t.Errorf("user_id = %v, want %s", payload["user_id"], userID)
	}
	if payload["username"] != "viewer-1" {
		t.Errorf("username = %v, want viewer-1", payload["username"])
	}
	if payload["user_agent"] != "test-agent" {
		t.Errorf("user_agent = %v, want test-agent", payload["user_agent"])
	}
}
