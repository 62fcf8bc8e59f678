package persistence

import (
	"encoding/json"
	"sort"

	"github.com/bpsreport/report-server/config"
	"github.com/bpsreport/report-server/types"
	"github.com/tidwall/buntdb"
)

const reportKeyPrefix = "report:"

type BuntDBPersist struct {
	db *buntdb.DB
}

// NewBuntPersister opens the BuntDB file storage backed persister. The file
// name comes from persistence.dsn or the legacy persistence.buntdb.name key,
// ":memory:" keeps everything in memory.
func NewBuntPersister(cfg *config.Config) (Persister, error) {
	fileName := cfg.PersistenceConfig.DSN
	if fileName == "" {
		fileName = cfg.PersistenceConfig.BuntDBConfig.Name
	}
	if fileName == "" {
		fileName = ":memory:"
	}
	db, err := buntdb.Open(fileName)
	if err != nil {
		return nil, err
	}
	err = db.CreateIndex("reportsts", reportKeyPrefix+"*", buntdb.IndexJSON("createdAt"))
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BuntDBPersist{db: db}, nil
}

func (p *BuntDBPersist) StoreReport(report types.Report) error {
	raw, err := json.Marshal(report)
	if err != nil {
		return err
	}
	return p.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(reportKeyPrefix+report.Id, string(raw), nil)
		return err
	})
}

func (p *BuntDBPersist) GetReport(id string) (*types.Report, error) {
	report := &types.Report{}
	err := p.db.View(func(tx *buntdb.Tx) error {
		raw, err := tx.Get(reportKeyPrefix + id)
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(raw), report)
	})
	if err == buntdb.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (p *BuntDBPersist) GetReports() ([]*types.Report, error) {
	reports := make([]*types.Report, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend("reportsts", func(key, val string) bool {
			report := &types.Report{}
			if err := json.Unmarshal([]byte(val), report); err == nil {
				reports = append(reports, report)
			}
			return true
		})
	})
	if err != nil {
		return nil, err
	}
	// newest first; the index sorts on the JSON string, sort on the parsed
	// timestamps to be safe across formats
	sort.SliceStable(reports, func(i, j int) bool {
		return reports[i].CreatedAt.After(reports[j].CreatedAt)
	})
	return reports, nil
}

// AppendResponse appends within a single Update transaction. BuntDB runs one
// writer at a time, so concurrent appends to the same report serialize here
// and none of them is lost.
func (p *BuntDBPersist) AppendResponse(reportId string, response types.Response) error {
	err := p.db.Update(func(tx *buntdb.Tx) error {
		raw, err := tx.Get(reportKeyPrefix + reportId)
		if err != nil {
			return err
		}
		report := types.Report{}
		if err := json.Unmarshal([]byte(raw), &report); err != nil {
			return err
		}
		report.Responses = append(report.Responses, response)
		updated, err := json.Marshal(report)
		if err != nil {
			return err
		}
		_, _, err = tx.Set(reportKeyPrefix+reportId, string(updated), nil)
		return err
	})
	if err == buntdb.ErrNotFound {
		return ErrNotFound
	}
	return err
}

func (p *BuntDBPersist) DeleteReport(id string) error {
	err := p.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(reportKeyPrefix + id)
		return err
	})
	if err == buntdb.ErrNotFound {
		return ErrNotFound
	}
	return err
}

func (p *BuntDBPersist) Close() error {
	return p.db.Close()
}
