package services

import (
	"context"
	"strings"
	"testing"

	"github.com/yungbote/synccore-backend/internal/domain"
	"github.com/yungbote/synccore-backend/internal/pkg/dbctx"
	"github.com/yungbote/synccore-backend/internal/platform/logger"
	"github.com/yungbote/synccore-backend/internal/registry"
)

type fakeCrystalRepo struct {
	replaced [][]*domain.CrystalRecord
}

func (f *fakeCrystalRepo) ReplaceAll(_ dbctx.Context, rows []*domain.CrystalRecord) error {
	f.replaced = append(f.replaced, rows)
	return nil
}

func (f *fakeCrystalRepo) LoadAll(_ dbctx.Context) ([]*domain.CrystalRecord, error) {
	return nil, nil
}

func newTestIngest(t *testing.T) (IngestService, *registry.Store, *fakeCrystalRepo) {
	t.Helper()
	store := registry.NewStore(logger.NewNop(), 0)
	repo := &fakeCrystalRepo{}
	return NewIngestService(logger.NewNop(), store, repo), store, repo
}

func TestInhaleSingleFile(t *testing.T) {
	svc, store, repo := newTestIngest(t)

	body := `[
		{"pulse": 5, "beat": 1, "stepIndex": 0, "url": "https://example.invalid/stream/p/a"},
		{"pulse": 5, "beat": 1, "stepIndex": 1, "url": "https://example.invalid/stream/p/b"},
		{"pulse": 3, "beat": 0, "stepIndex": 0, "url": "https://example.invalid/stream/p/c"}
	]`
	report, err := svc.Inhale(context.Background(), []UploadedFile{{Name: "k.json", Data: []byte(body)}}, 0)
	if err != nil {
		t.Fatalf("Inhale: %v", err)
	}
	if report.FilesReceived != 1 || report.CrystalsTotal != 3 || report.CrystalsImported != 3 || report.CrystalsFailed != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(report.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", report.Errors)
	}
	if report.LatestPulse == nil || *report.LatestPulse != 5 {
		t.Fatalf("latest pulse = %v, want 5", report.LatestPulse)
	}

	snap := store.Snapshot()
	if snap.Latest != (domain.Moment{Pulse: 5, Beat: 1, StepIndex: 1}) {
		t.Fatalf("latest = %v", snap.Latest)
	}
	if len(snap.URLs) != 3 || snap.URLs[0] != "https://example.invalid/stream/p/b" {
		t.Fatalf("urls not moment-descending: %v", snap.URLs)
	}

	if len(repo.replaced) != 1 || len(repo.replaced[0]) != 3 {
		t.Fatalf("persistence not triggered with full registry: %+v", repo.replaced)
	}
}

func TestInhaleIsolatesBadFile(t *testing.T) {
	svc, store, _ := newTestIngest(t)

	files := []UploadedFile{
		{Name: "good.json", Data: []byte(`{"crystals": [{"pulse": 2, "beat": 1, "stepIndex": 0}]}`)},
		{Name: "bad.json", Data: []byte(`{not json`)},
	}
	report, err := svc.Inhale(context.Background(), files, 0)
	if err != nil {
		t.Fatalf("Inhale: %v", err)
	}
	if report.FilesReceived != 2 {
		t.Fatalf("files_received = %d", report.FilesReceived)
	}
	if report.CrystalsImported != 1 {
		t.Fatalf("imported = %d, want 1", report.CrystalsImported)
	}
	if report.CrystalsFailed != 1 {
		t.Fatalf("failed = %d, want 1", report.CrystalsFailed)
	}
	if report.CrystalsTotal != 2 {
		t.Fatalf("total = %d, want 2", report.CrystalsTotal)
	}
	if len(report.Errors) != 1 || !strings.Contains(report.Errors[0], "bad.json") {
		t.Fatalf("errors = %v, want one naming bad.json", report.Errors)
	}
	if store.Len() != 1 {
		t.Fatalf("registry size = %d, want 1 (no trace of the bad file)", store.Len())
	}
}

func TestInhaleMergesAllFilesAtomically(t *testing.T) {
	svc, store, _ := newTestIngest(t)

	// Same final registry must come out of one request with two files
	// as out of two requests with one file each.
	fileA := []byte(`[{"pulse": 5, "beat": 1, "stepIndex": 0}]`)
	fileB := []byte(`[{"pulse": 5, "beat": 1, "stepIndex": 1}]`)

	if _, err := svc.Inhale(context.Background(), []UploadedFile{
		{Name: "a.json", Data: fileA},
		{Name: "b.json", Data: fileB},
	}, 0); err != nil {
		t.Fatalf("Inhale: %v", err)
	}
	oneRequest := store.Snapshot().Seal

	store2 := registry.NewStore(logger.NewNop(), 0)
	svc2 := NewIngestService(logger.NewNop(), store2, nil)
	if _, err := svc2.Inhale(context.Background(), []UploadedFile{{Name: "a.json", Data: fileA}}, 0); err != nil {
		t.Fatalf("Inhale a: %v", err)
	}
	if _, err := svc2.Inhale(context.Background(), []UploadedFile{{Name: "b.json", Data: fileB}}, 0); err != nil {
		t.Fatalf("Inhale b: %v", err)
	}

	if oneRequest != store2.Snapshot().Seal {
		t.Fatalf("final seal depends on request batching")
	}
}

func TestInhaleIsolatesBadCandidate(t *testing.T) {
	svc, store, _ := newTestIngest(t)

	body := `[{"pulse": 1, "beat": 0, "stepIndex": 0}, 42]`
	report, err := svc.Inhale(context.Background(), []UploadedFile{{Name: "mixed.json", Data: []byte(body)}}, 0)
	if err != nil {
		t.Fatalf("Inhale: %v", err)
	}
	if report.CrystalsTotal != 2 || report.CrystalsImported != 1 || report.CrystalsFailed != 1 {
		t.Fatalf("unexpected counts: %+v", report)
	}
	if len(report.Errors) != 1 || !strings.Contains(report.Errors[0], "mixed.json[1]") {
		t.Fatalf("errors = %v", report.Errors)
	}
	if store.Len() != 1 {
		t.Fatalf("registry size = %d, want 1", store.Len())
	}
}

func TestInhaleRejectsOversizeFile(t *testing.T) {
	svc, _, _ := newTestIngest(t)

	big := []byte(`[{"pulse": 1}]`)
	report, err := svc.Inhale(context.Background(), []UploadedFile{{Name: "big.json", Data: big}}, 4)
	if err != nil {
		t.Fatalf("Inhale: %v", err)
	}
	if report.CrystalsImported != 0 || report.CrystalsFailed != 1 {
		t.Fatalf("unexpected counts: %+v", report)
	}
	if len(report.Errors) != 1 || !strings.Contains(report.Errors[0], "too large") {
		t.Fatalf("errors = %v", report.Errors)
	}
}

func TestInhaleEchoesPayloadMoment(t *testing.T) {
	svc, store, _ := newTestIngest(t)

	body := `{"payload": {"pulse": 9, "beat": 4, "stepIndex": 2, "url": "https://example.invalid/stream/p/z"}}`
	if _, err := svc.Inhale(context.Background(), []UploadedFile{{Name: "wrapped.json", Data: []byte(body)}}, 0); err != nil {
		t.Fatalf("Inhale: %v", err)
	}
	snap := store.Snapshot()
	if len(snap.Registry) != 1 {
		t.Fatalf("registry size = %d", len(snap.Registry))
	}
	e := snap.Registry[0]
	if e.Pulse != 9 || e.Beat != 4 || e.StepIndex != 2 {
		t.Fatalf("top-level moment = %v", e.Moment())
	}
	for field, want := range map[string]int{"pulse": e.Pulse, "beat": e.Beat, "stepIndex": e.StepIndex} {
		got, ok := e.Payload[field].(float64)
		if !ok || int(got) != want {
			t.Fatalf("top-level %s=%d is not an echo of payload %v", field, want, e.Payload[field])
		}
	}
	if e.URL != "https://example.invalid/stream/p/z" {
		t.Fatalf("url = %q", e.URL)
	}
}

func TestInhaleDefaultsMissingMomentFields(t *testing.T) {
	svc, store, _ := newTestIngest(t)

	body := `[{"pulse": 2, "note": "no beat or step"}]`
	if _, err := svc.Inhale(context.Background(), []UploadedFile{{Name: "sparse.json", Data: []byte(body)}}, 0); err != nil {
		t.Fatalf("Inhale: %v", err)
	}
	snap := store.Snapshot()
	if snap.Latest != (domain.Moment{Pulse: 2}) {
		t.Fatalf("latest = %v, want (2,0,0)", snap.Latest)
	}
}
