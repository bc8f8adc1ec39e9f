package licensegin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/open-rails/licensekit/entitlements"
	"github.com/open-rails/licensekit/gate"
)

type staticSource struct {
	snap entitlements.Snapshot
}

func (s staticSource) Snapshot() entitlements.Snapshot { return s.snap }

func okSnapshot() entitlements.Snapshot {
	return entitlements.Snapshot{
		Status:         entitlements.StatusOK,
		Reason:         "entitlement active",
		SignatureValid: true,
		Payload: &entitlements.Payload{
			Plan:     "pro",
			Features: map[string]bool{"export": true},
		},
	}
}

func router(snap entitlements.Snapshot, feature string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	g := gate.New(staticSource{snap}, nil)
	r := gin.New()
	r.GET("/export", RequireFeature(g, feature), func(c *gin.Context) {
		c.String(http.StatusOK, "exported")
	})
	return r
}

func TestRequireFeatureAllows(t *testing.T) {
	r := router(okSnapshot(), "export")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/export", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200 (body: %s)", w.Code, w.Body.String())
	}
	if w.Body.String() != "exported" {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestRequireFeatureDenies(t *testing.T) {
	snap := entitlements.Snapshot{
		Status: entitlements.StatusExpired,
		Reason: "entitlement and grace period expired",
	}
	r := router(snap, "export")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/export", nil))

	if w.Code != http.StatusForbidden {
		t.Fatalf("code = %d, want 403", w.Code)
	}
	var body struct {
		Error  string `json:"error"`
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("body: %v", err)
	}
	if body.Error != "feature_not_available" || body.Status != string(entitlements.StatusExpired) {
		t.Errorf("body = %+v", body)
	}
}

func TestRequireFeatureDeniesUnknownFeature(t *testing.T) {
	r := router(okSnapshot(), "not-in-plan")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/export", nil))

	if w.Code != http.StatusForbidden {
		t.Fatalf("code = %d, want 403", w.Code)
	}
}

func TestDecisionStoredOnContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	g := gate.New(staticSource{okSnapshot()}, nil)

	var got gate.Decision
	var found bool
	r := gin.New()
	r.GET("/export", RequireFeature(g, "export"), func(c *gin.Context) {
		got, found = Decision(c)
		c.Status(http.StatusOK)
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/export", nil))

	if !found {
		t.Fatal("decision missing from context")
	}
	if !got.Allowed || got.Status != entitlements.StatusOK {
		t.Errorf("decision = %+v", got)
	}
}

func TestStatusHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/license", StatusHandler(staticSource{okSnapshot()}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/license", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	var snap entitlements.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("body: %v", err)
	}
	if snap.Status != entitlements.StatusOK {
		t.Errorf("status = %s", snap.Status)
	}
}
