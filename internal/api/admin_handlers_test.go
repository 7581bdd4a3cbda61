package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/technosupport/ts-lms/internal/admin"
	"github.com/technosupport/ts-lms/internal/data"
	"github.com/technosupport/ts-lms/internal/keycodec"
	"github.com/technosupport/ts-lms/internal/metrics"
)

func adminRouter(repo *admin.MockRepo) http.Handler {
	svc := admin.NewService(repo, &admin.MockAuditor{}, &admin.MockMinter{}, nil)
	h := NewAdminHandler(svc, metrics.NewCollector())

	r := chi.NewRouter()
	r.Get("/admin/keys", h.ListKeys)
	r.Post("/admin/keys/generate", h.GenerateKeys)
	r.Post("/admin/keys/{key}/manage", h.ManageKey)
	r.Get("/admin/audit", h.ListAuditLog)
	return r
}

// 1. Manage routes the key from the URL and the action from the body
func TestManageKey_Revoke(t *testing.T) {
	var managed string
	repo := &admin.MockRepo{
		FindKeyFunc: func(ctx context.Context, key string) (*data.LicenseKey, error) {
			managed = key
			return &data.LicenseKey{Key: key, Tier: keycodec.TierPro, Status: data.StatusUsed}, nil
		},
	}

	body, _ := json.Marshal(map[string]string{"action": "revoke", "reason": "refund"})
	req := httptest.NewRequest("POST", "/admin/keys/"+testKey+"/manage", bytes.NewReader(body))
	w := httptest.NewRecorder()
	adminRouter(repo).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if managed != testKey {
		t.Errorf("Managed key = %q, want %q", managed, testKey)
	}
}

// 2. Unknown key is 404
func TestManageKey_NotFound(t *testing.T) {
	body, _ := json.Marshal(map[string]string{"action": "revoke"})
	req := httptest.NewRequest("POST", "/admin/keys/"+testKey+"/manage", bytes.NewReader(body))
	w := httptest.NewRecorder()
	adminRouter(&admin.MockRepo{}).ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

// 3. Unknown action is 400
func TestManageKey_UnknownAction(t *testing.T) {
	repo := &admin.MockRepo{
		FindKeyFunc: func(ctx context.Context, key string) (*data.LicenseKey, error) {
			return &data.LicenseKey{Key: key, Status: data.StatusActive}, nil
		},
	}

	body, _ := json.Marshal(map[string]string{"action": "explode"})
	req := httptest.NewRequest("POST", "/admin/keys/"+testKey+"/manage", bytes.NewReader(body))
	w := httptest.NewRecorder()
	adminRouter(repo).ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

// 4. Generate returns the minted batch
func TestGenerateKeys_Endpoint(t *testing.T) {
	repo := &admin.MockRepo{}

	body, _ := json.Marshal(admin.GenerateRequest{Tier: keycodec.TierPro, Count: 3, DurationDays: 30})
	req := httptest.NewRequest("POST", "/admin/keys/generate", bytes.NewReader(body))
	w := httptest.NewRecorder()
	adminRouter(repo).ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Count int `json:"count"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Count != 3 {
		t.Errorf("Expected 3 keys, got %d", resp.Count)
	}
}

// 5. Listing passes filters through
func TestListKeys_Endpoint(t *testing.T) {
	var gotFilter data.KeyFilter
	repo := &admin.MockRepo{
		ListKeysFunc: func(ctx context.Context, filter data.KeyFilter, limit, offset int) ([]*data.KeySummary, error) {
			gotFilter = filter
			return []*data.KeySummary{}, nil
		},
	}

	req := httptest.NewRequest("GET", "/admin/keys?tier=enterprise&status=revoked", nil)
	w := httptest.NewRecorder()
	adminRouter(repo).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if gotFilter.Tier != keycodec.TierEnterprise || gotFilter.Status != data.StatusRevoked {
		t.Errorf("Filter not passed: %+v", gotFilter)
	}
}
