package persistence

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bpsreport/report-server/config"
	"github.com/bpsreport/report-server/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPersister(t *testing.T) Persister {
	t.Helper()
	cfg := &config.Config{
		PersistenceConfig: config.PersistenceConfig{Type: "buntdb", DSN: ":memory:"},
	}
	p, err := NewBuntPersister(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func testReport(id string, createdAt time.Time) types.Report {
	return types.Report{
		Id:        id,
		GrowId:    "G1",
		Category:  "Scam",
		Complaint: "stole my wls",
		Status:    types.StatusPending,
		CreatedAt: createdAt,
		Responses: []types.Response{{
			Message:   "stole my wls",
			IsAdmin:   false,
			CreatedAt: createdAt,
		}},
	}
}

func TestStoreAndGetReport(t *testing.T) {
	p := newTestPersister(t)

	report := testReport("r1", time.Now())
	require.NoError(t, p.StoreReport(report))

	got, err := p.GetReport("r1")
	require.NoError(t, err)
	assert.Equal(t, "G1", got.GrowId)
	assert.Equal(t, "Scam", got.Category)
	require.Len(t, got.Responses, 1)
	assert.Equal(t, "stole my wls", got.Responses[0].Message)
}

func TestGetReportNotFound(t *testing.T) {
	p := newTestPersister(t)

	_, err := p.GetReport("no-such-report")
	assert.Equal(t, ErrNotFound, err)
}

func TestGetReportsNewestFirst(t *testing.T) {
	p := newTestPersister(t)

	base := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, p.StoreReport(testReport(fmt.Sprintf("r%d", i), base.Add(time.Duration(i)*time.Minute))))
	}

	reports, err := p.GetReports()
	require.NoError(t, err)
	require.Len(t, reports, 3)
	assert.Equal(t, "r2", reports[0].Id)
	assert.Equal(t, "r1", reports[1].Id)
	assert.Equal(t, "r0", reports[2].Id)
}

func TestAppendResponse(t *testing.T) {
	p := newTestPersister(t)
	require.NoError(t, p.StoreReport(testReport("r1", time.Now())))

	resp := types.Response{Message: "hi", IsAdmin: true, CreatedAt: time.Now()}
	require.NoError(t, p.AppendResponse("r1", resp))

	got, err := p.GetReport("r1")
	require.NoError(t, err)
	require.Len(t, got.Responses, 2)
	assert.Equal(t, "hi", got.Responses[1].Message)
	assert.True(t, got.Responses[1].IsAdmin)
}

func TestAppendResponseNotFound(t *testing.T) {
	p := newTestPersister(t)

	err := p.AppendResponse("no-such-report", types.Response{Message: "hi"})
	assert.Equal(t, ErrNotFound, err)
}

// Concurrent senders to the same report must not lose appends: the final
// response count has to equal the initial count plus the number of appends.
func TestAppendResponseConcurrent(t *testing.T) {
	p := newTestPersister(t)
	require.NoError(t, p.StoreReport(testReport("r1", time.Now())))

	const senders = 20
	const perSender = 10
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(sender int) {
			defer wg.Done()
			for j := 0; j < perSender; j++ {
				resp := types.Response{
					Message:   fmt.Sprintf("message %d from %d", j, sender),
					CreatedAt: time.Now(),
				}
				assert.NoError(t, p.AppendResponse("r1", resp))
			}
		}(i)
	}
	wg.Wait()

	got, err := p.GetReport("r1")
	require.NoError(t, err)
	assert.Len(t, got.Responses, 1+senders*perSender)
}

func TestDeleteReport(t *testing.T) {
	p := newTestPersister(t)
	require.NoError(t, p.StoreReport(testReport("r1", time.Now())))

	require.NoError(t, p.DeleteReport("r1"))
	_, err := p.GetReport("r1")
	assert.Equal(t, ErrNotFound, err)

	assert.Equal(t, ErrNotFound, p.DeleteReport("r1"))
}
