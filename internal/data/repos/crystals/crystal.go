package crystals

import (
	"github.com/yungbote/synccore-backend/internal/domain"
	"github.com/yungbote/synccore-backend/internal/pkg/dbctx"
	"github.com/yungbote/synccore-backend/internal/platform/logger"

	"gorm.io/gorm"
)

type CrystalRepo interface {
	ReplaceAll(dbc dbctx.Context, rows []*domain.CrystalRecord) error
	LoadAll(dbc dbctx.Context) ([]*domain.CrystalRecord, error)
}

type crystalRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCrystalRepo(db *gorm.DB, baseLog *logger.Logger) CrystalRepo {
	return &crystalRepo{
		db:  db,
		log: baseLog.With("repo", "CrystalRepo"),
	}
}

// ReplaceAll rewrites the whole table with the given rows in one
// transaction. The registry is small and totally ordered in memory, so
// a full rewrite after each merge is simpler and safer than diffing.
func (r *crystalRepo) ReplaceAll(dbc dbctx.Context, rows []*domain.CrystalRecord) error {
	conn := dbc.Conn(r.db)
	return conn.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&domain.CrystalRecord{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, 200).Error
	})
}

// LoadAll returns every persisted crystal, moment-descending.
func (r *crystalRepo) LoadAll(dbc dbctx.Context) ([]*domain.CrystalRecord, error) {
	conn := dbc.Conn(r.db)
	var out []*domain.CrystalRecord
	if err := conn.
		Order("pulse DESC, beat DESC, step_index DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
