package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/red-ai/redterm/internal/config"
)

func TestBuild_ServesHealthz(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg, errLoad := config.Load("does-not-exist.yaml")
	if errLoad != nil {
		t.Fatalf("load config: %v", errLoad)
	}
	cfg.Database.DSN = "file::memory:"
	cfg.JWT.Secret = "test-secret"

	r, conn, errBuild := Build(cfg)
	if errBuild != nil {
		t.Fatalf("build: %v", errBuild)
	}
	if conn == nil {
		t.Fatalf("expected a database handle")
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("healthz: status %d body %s", w.Code, w.Body.String())
	}
}
