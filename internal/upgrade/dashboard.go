package upgrade

import (
	"context"

	"github.com/sourcegraph/conc/pool"
)

// DefaultDashboardParallel is used when Dashboard is given a non-positive limit.
const DefaultDashboardParallel = 4

// DashboardEntry is the outcome for one repository in a dashboard run.
type DashboardEntry struct {
	Owner         string    `json:"owner"`
	Name          string    `json:"name"`
	TargetPackage string    `json:"targetPackage"`
	Response      *Response `json:"response,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// Failed reports whether the upgrade for this repository returned an error.
func (e DashboardEntry) Failed() bool {
	return e.Error != ""
}

// Dashboard runs one upgrade per request with at most parallel running at
// once. Entries are returned in request order. A failing repository records
// its error in its entry and does not affect the others.
func (s *Service) Dashboard(ctx context.Context, reqs []Request, parallel int) []DashboardEntry {
	if parallel < 1 {
		parallel = DefaultDashboardParallel
	}

	entries := make([]DashboardEntry, len(reqs))
	p := pool.New().WithMaxGoroutines(parallel)
	for i, req := range reqs {
		p.Go(func() {
			entry := DashboardEntry{Owner: req.Owner, Name: req.Name, TargetPackage: req.TargetPackage}
			resp, err := s.Upgrade(ctx, req)
			if err != nil {
				entry.Error = err.Error()
			} else {
				entry.Response = resp
			}
			entries[i] = entry
		})
	}
	p.Wait()

	failed := 0
	for _, e := range entries {
		if e.Failed() {
			failed++
		}
	}
	s.logger.Info("dashboard finished", "repositories", len(reqs), "failed", failed, "parallel", parallel)
	return entries
}
