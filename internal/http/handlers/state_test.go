package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/yungbote/synccore-backend/internal/domain"
)

func getWithValidator(t *testing.T, r http.Handler, url, validator string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	if validator != "" {
		req.Header.Set("If-None-Match", validator)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestSealEndpoint(t *testing.T) {
	r, store := testRouter(t)

	rec := getWithValidator(t, r, "/api/seal", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out SealResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Seal != store.Seal() {
		t.Fatalf("body seal %q != store seal %q", out.Seal, store.Seal())
	}
	if etag := rec.Header().Get("ETag"); strings.Trim(etag, `"`) != out.Seal {
		t.Fatalf("ETag %q does not carry the seal", etag)
	}
}

func TestConditionalReadNotModified(t *testing.T) {
	r, _ := testRouter(t)

	if rec, _ := doInhale(t, r, "/api/inhale", map[string]string{
		"k.json": `[{"pulse": 5, "beat": 1, "stepIndex": 0}]`,
	}); rec.Code != http.StatusOK {
		t.Fatalf("inhale: %d", rec.Code)
	}

	rec := getWithValidator(t, r, "/api/seal", "")
	etag := rec.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("missing ETag")
	}

	for _, url := range []string{"/api/seal", "/api/state"} {
		t.Run(url, func(t *testing.T) {
			rec := getWithValidator(t, r, url, etag)
			if rec.Code != http.StatusNotModified {
				t.Fatalf("status = %d, want 304", rec.Code)
			}
			if rec.Body.Len() != 0 {
				t.Fatalf("304 carried a body: %s", rec.Body.String())
			}
		})
	}

	// Weak and unquoted validators must match too.
	for _, validator := range []string{"W/" + etag, strings.Trim(etag, `"`)} {
		rec := getWithValidator(t, r, "/api/state", validator)
		if rec.Code != http.StatusNotModified {
			t.Fatalf("validator %q: status = %d, want 304", validator, rec.Code)
		}
	}
}

func TestConditionalReadInvalidatedByMerge(t *testing.T) {
	r, _ := testRouter(t)

	if rec, _ := doInhale(t, r, "/api/inhale", map[string]string{
		"k.json": `[{"pulse": 5, "beat": 1, "stepIndex": 0}]`,
	}); rec.Code != http.StatusOK {
		t.Fatalf("inhale: %d", rec.Code)
	}
	etag := getWithValidator(t, r, "/api/seal", "").Header().Get("ETag")

	if rec, _ := doInhale(t, r, "/api/inhale", map[string]string{
		"k2.json": `[{"pulse": 6, "beat": 0, "stepIndex": 0}]`,
	}); rec.Code != http.StatusOK {
		t.Fatalf("second inhale: %d", rec.Code)
	}

	rec := getWithValidator(t, r, "/api/state", etag)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 after merge", rec.Code)
	}
	var snap domain.RegistryState
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Latest.Pulse != 6 {
		t.Fatalf("latest.pulse = %d, want 6", snap.Latest.Pulse)
	}
	newTag := rec.Header().Get("ETag")
	if newTag == "" || newTag == etag {
		t.Fatalf("validator not rotated: %q -> %q", etag, newTag)
	}
	if strings.Trim(newTag, `"`) != snap.Seal {
		t.Fatalf("ETag %q does not match body seal %q", newTag, snap.Seal)
	}
}

func TestStateSnapshotShape(t *testing.T) {
	r, _ := testRouter(t)

	if rec, _ := doInhale(t, r, "/api/inhale", map[string]string{
		"k.json": `[
			{"pulse": 5, "beat": 1, "stepIndex": 1, "url": "https://example.invalid/stream/p/b"},
			{"pulse": 3, "beat": 0, "stepIndex": 0, "url": "https://example.invalid/stream/p/c"}
		]`,
	}); rec.Code != http.StatusOK {
		t.Fatalf("inhale: %d", rec.Code)
	}

	rec := getWithValidator(t, r, "/api/state", "")
	var snap domain.RegistryState
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Spec != domain.SpecVersion {
		t.Fatalf("spec = %q", snap.Spec)
	}
	if snap.TotalURLs != 2 || len(snap.Registry) != 2 || len(snap.URLs) != 2 {
		t.Fatalf("unexpected shape: %+v", snap)
	}
	for i, e := range snap.Registry {
		if e.Payload == nil {
			t.Fatalf("registry[%d] payload missing", i)
		}
		if int(e.Payload["pulse"].(float64)) != e.Pulse {
			t.Fatalf("registry[%d] pulse is not an echo of payload", i)
		}
	}
	if snap.URLs[0] != snap.Registry[0].URL {
		t.Fatalf("urls does not mirror registry order")
	}
}

func TestExhaleModes(t *testing.T) {
	r, _ := testRouter(t)

	if rec, _ := doInhale(t, r, "/api/inhale", map[string]string{
		"k.json": `[{"pulse": 1, "beat": 0, "stepIndex": 0, "url": "https://example.invalid/stream/p/a"}]`,
	}); rec.Code != http.StatusOK {
		t.Fatalf("inhale: %d", rec.Code)
	}

	t.Run("urls", func(t *testing.T) {
		rec := getWithValidator(t, r, "/api/exhale", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var out ExhaleResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if out.Mode != "urls" || len(out.URLs) != 1 || out.State != nil {
			t.Fatalf("unexpected exhale: %+v", out)
		}
	})

	t.Run("state", func(t *testing.T) {
		rec := getWithValidator(t, r, "/api/exhale?mode=state", "")
		var out ExhaleResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if out.Mode != "state" || out.State == nil || out.State.TotalURLs != 1 {
			t.Fatalf("unexpected exhale: %+v", out)
		}
	})

	t.Run("invalid mode", func(t *testing.T) {
		rec := getWithValidator(t, r, "/api/exhale?mode=bogus", "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})
}
