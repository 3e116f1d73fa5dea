package services

import (
	"context"
	"fmt"
	"net/http"

	"github.com/yungbote/synccore-backend/internal/data/repos/crystals"
	"github.com/yungbote/synccore-backend/internal/domain"
	"github.com/yungbote/synccore-backend/internal/pkg/dbctx"
	"github.com/yungbote/synccore-backend/internal/platform/apierr"
	"github.com/yungbote/synccore-backend/internal/platform/logger"
	"github.com/yungbote/synccore-backend/internal/registry"
)

// UploadedFile is one already-read multipart part.
type UploadedFile struct {
	Name string
	Data []byte
}

type IngestService interface {
	// Inhale merges the uploaded files into the registry. Per-file and
	// per-candidate failures are isolated and reported; the returned
	// error is reserved for a merge fault, in which case the registry
	// is untouched.
	Inhale(ctx context.Context, files []UploadedFile, maxBytesPerFile int64) (*domain.InhaleReport, error)
}

type ingestService struct {
	log   *logger.Logger
	store *registry.Store
	repo  crystals.CrystalRepo
}

// NewIngestService wires the ingestion coordinator. repo may be nil
// for memory-only deployments.
func NewIngestService(log *logger.Logger, store *registry.Store, repo crystals.CrystalRepo) IngestService {
	return &ingestService{
		log:   log.With("service", "IngestService"),
		store: store,
		repo:  repo,
	}
}

func (s *ingestService) Inhale(ctx context.Context, files []UploadedFile, maxBytesPerFile int64) (*domain.InhaleReport, error) {
	report := &domain.InhaleReport{
		FilesReceived: len(files),
		Errors:        []string{},
	}

	// Decode every source independently; one bad file never blocks the
	// rest of the request.
	var candidates []domain.Crystal
	for _, f := range files {
		if maxBytesPerFile > 0 && int64(len(f.Data)) > maxBytesPerFile {
			report.CrystalsTotal++
			report.CrystalsFailed++
			report.Errors = append(report.Errors,
				fmt.Sprintf("%s: file too large (%d bytes, max %d)", f.Name, len(f.Data), maxBytesPerFile))
			continue
		}
		decoded, itemErrs, err := decodeCrystals(f.Name, f.Data)
		if err != nil {
			report.CrystalsTotal++
			report.CrystalsFailed++
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", f.Name, err))
			continue
		}
		report.CrystalsTotal += len(decoded) + len(itemErrs)
		report.CrystalsFailed += len(itemErrs)
		report.Errors = append(report.Errors, itemErrs...)
		candidates = append(candidates, decoded...)
	}

	// One atomic merge per request, never per file. This is what keeps
	// the ordering and latest-pulse invariants intact when a request
	// carries several files.
	imported, err := s.store.ApplyBatch(candidates)
	if err != nil {
		s.log.Error("merge failed, registry unchanged", "error", err)
		return nil, apierr.New(http.StatusInternalServerError, "merge_failed", fmt.Errorf("apply batch: %w", err))
	}
	report.CrystalsImported = imported
	report.CrystalsFailed += len(candidates) - imported

	snap := s.store.Snapshot()
	report.RegistryURLs = snap.URLs
	if len(snap.Registry) > 0 {
		pulse := snap.Latest.Pulse
		report.LatestPulse = &pulse
	}

	s.persist(ctx, snap)

	s.log.Info("inhale complete",
		"files", report.FilesReceived,
		"total", report.CrystalsTotal,
		"imported", report.CrystalsImported,
		"failed", report.CrystalsFailed,
		"seal", snap.Seal,
	)
	return report, nil
}

// persist rewrites the durable copy from the snapshot, best effort. A
// persistence failure must never break the API; memory state stays
// authoritative, matching boot-time reload semantics.
func (s *ingestService) persist(ctx context.Context, snap domain.RegistryState) {
	if s.repo == nil {
		return
	}
	rows := make([]*domain.CrystalRecord, 0, len(snap.Registry))
	for _, c := range snap.Registry {
		row, err := domain.RecordFromCrystal(c)
		if err != nil {
			s.log.Warn("skipping unpersistable crystal", "error", err)
			continue
		}
		rows = append(rows, row)
	}
	if err := s.repo.ReplaceAll(dbctx.Context{Ctx: ctx}, rows); err != nil {
		s.log.Warn("registry persist failed", "error", err, "rows", len(rows))
	}
}
