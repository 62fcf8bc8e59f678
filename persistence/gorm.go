package persistence

import (
	"errors"
	"fmt"

	"github.com/bpsreport/report-server/config"
	"github.com/bpsreport/report-server/types"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type GormPersist struct {
	db *gorm.DB
}

func NewGormPersister(cfg *config.Config) (Persister, error) {
	db, err := setupGormDB(cfg)
	if err != nil {
		return nil, err
	}
	p := GormPersist{db: db}
	return &p, nil
}

func setupGormDB(cfg *config.Config) (*gorm.DB, error) {
	if cfg.PersistenceConfig.DSN == "" {
		return nil, fmt.Errorf("no dsn configured")
	}
	var dial gorm.Dialector
	switch cfg.PersistenceConfig.Type {
	case "postgres":
		dial = postgres.Open(cfg.PersistenceConfig.DSN)

	case "sqlite":
		dial = sqlite.Open(cfg.PersistenceConfig.DSN)

	default:
		return nil, fmt.Errorf("invalid gorm configuration")
	}
	db, err := gorm.Open(dial, &gorm.Config{})
	if err != nil {
		return nil, err
	}
	db.Migrator().AutoMigrate(&types.Report{}, &types.Response{})
	return db, nil
}

func (p *GormPersist) StoreReport(report types.Report) error {
	return p.db.Create(&report).Error
}

func (p *GormPersist) GetReport(id string) (*types.Report, error) {
	report := &types.Report{}
	err := p.db.Preload("Responses", func(db *gorm.DB) *gorm.DB {
		return db.Order("seq ASC")
	}).First(report, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (p *GormPersist) GetReports() ([]*types.Report, error) {
	reports := make([]*types.Report, 0)
	err := p.db.Preload("Responses", func(db *gorm.DB) *gorm.DB {
		return db.Order("seq ASC")
	}).Order("created_at DESC").Find(&reports).Error
	if err != nil {
		return nil, err
	}
	return reports, nil
}

// AppendResponse inserts the response as its own row, so concurrent appends
// to the same report never overwrite each other. The existence check and the
// insert share one transaction.
func (p *GormPersist) AppendResponse(reportId string, response types.Response) error {
	return p.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&types.Report{}).Where("id = ?", reportId).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
		response.ReportId = reportId
		return tx.Create(&response).Error
	})
}

func (p *GormPersist) DeleteReport(id string) error {
	return p.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&types.Report{Id: id})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Where("report_id = ?", id).Delete(&types.Response{}).Error
	})
}

func (p *GormPersist) Close() error {
	return nil
}
