package collection

import (
	"context"
	"fmt"

	"github.com/smsh73/AAA/internal/contracts"
)

// Planner expands a job into its units from the analyst's coverage
type Planner struct {
	coverage contracts.CoverageRepository
}

// NewPlanner creates a planner
func NewPlanner(coverage contracts.CoverageRepository) *Planner {
	return &Planner{coverage: coverage}
}

// Plan returns the job's units and the per-type totals
// target_price / performance 는 ticker가 있는 종목만 대상
func (p *Planner) Plan(ctx context.Context, job *contracts.CollectionJob) ([]contracts.Unit, map[contracts.CollectionType]int, error) {
	targets, err := p.coverage.ListCoverage(ctx, job.AnalystID)
	if err != nil {
		return nil, nil, fmt.Errorf("list coverage: %w", err)
	}

	totals := make(map[contracts.CollectionType]int, len(job.Types))
	var units []contracts.Unit
	for _, ct := range job.Types {
		totals[ct] = 0
		for _, t := range targets {
			if needsTicker(ct) && t.Ticker == "" {
				continue
			}
			units = append(units, contracts.Unit{
				JobID:     job.ID,
				AnalystID: job.AnalystID,
				Type:      ct,
				Target:    t,
				StartDate: job.StartDate,
				EndDate:   job.EndDate,
			})
			totals[ct]++
		}
	}
	return units, totals, nil
}

func needsTicker(ct contracts.CollectionType) bool {
	return ct == contracts.TypeTargetPrice || ct == contracts.TypePerformance
}
