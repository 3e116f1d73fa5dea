package db

import (
	"fmt"
	stdlog "log"
	"os"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/synccore-backend/internal/domain"
	"github.com/yungbote/synccore-backend/internal/platform/logger"
)

// SqliteService owns the embedded database backing registry
// persistence. The registry itself is authoritative in memory; this is
// the durable copy reloaded at boot.
type SqliteService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSqliteService(path string, logg *logger.Logger) (*SqliteService, error) {
	serviceLog := logg.With("service", "SqliteService")

	gormLog := gormLogger.New(
		stdlog.New(os.Stdout, "\r\n", stdlog.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	conn, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite at %s: %w", path, err)
	}

	serviceLog.Info("sqlite opened", "path", path)
	return &SqliteService{db: conn, log: serviceLog}, nil
}

func (s *SqliteService) AutoMigrateAll() error {
	if err := s.db.AutoMigrate(&domain.CrystalRecord{}); err != nil {
		return fmt.Errorf("sqlite automigrate: %w", err)
	}
	return nil
}

func (s *SqliteService) DB() *gorm.DB { return s.db }
