package persistence

import (
	"errors"
	"fmt"

	"github.com/bpsreport/report-server/config"
	"github.com/bpsreport/report-server/types"
)

// ErrNotFound is returned when a report id has no record. Callers use it to
// tell a missing report apart from a failing store.
var ErrNotFound = errors.New("report not found")

// Persister is the durable record of reports and their ordered response log.
//
// AppendResponse is the single write path for responses: it must append
// atomically with respect to concurrent appends to the same report, so that
// no response is lost when two senders write at once.
type Persister interface {
	StoreReport(types.Report) error
	GetReport(id string) (*types.Report, error)
	GetReports() ([]*types.Report, error)
	AppendResponse(reportId string, response types.Response) error
	DeleteReport(id string) error
	Close() error
}

// NewPersister selects the persistence backend from the configuration.
func NewPersister(cfg *config.Config) (Persister, error) {
	switch cfg.PersistenceConfig.Type {
	case "", "buntdb":
		return NewBuntPersister(cfg)

	case "sqlite", "postgres":
		return NewGormPersister(cfg)
	}
	return nil, fmt.Errorf("unknown persistence type %q", cfg.PersistenceConfig.Type)
}
