package ranking

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/smsh73/AAA/internal/contracts"
)

// InCategory reports whether sector belongs to an award category
func InCategory(category, sector string) bool {
	for _, s := range contracts.AwardCategories[category] {
		if s == sector {
			return true
		}
	}
	return false
}

// Categories lists award categories in a stable order
func Categories() []string {
	out := make([]string, 0, len(contracts.AwardCategories))
	for c := range contracts.AwardCategories {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// SelectAwards picks gold/silver/bronze among ranked scorecards of the category's sectors
// 입력은 Rank()로 정렬된 상태여야 함
func SelectAwards(ranked []*contracts.Scorecard, category, period string, now time.Time) ([]*contracts.Award, error) {
	if _, ok := contracts.AwardCategories[category]; !ok {
		return nil, contracts.NewValidationError("category", fmt.Sprintf("unknown award category %q", category))
	}

	var awards []*contracts.Award
	for _, sc := range ranked {
		if !InCategory(category, sc.Sector) {
			continue
		}
		awardType, ok := contracts.AwardTypeForPlace(len(awards) + 1)
		if !ok {
			break
		}
		awards = append(awards, &contracts.Award{
			ID:          uuid.NewString(),
			ScorecardID: sc.ID,
			AnalystID:   sc.AnalystID,
			Category:    category,
			Period:      period,
			Type:        awardType,
			Rank:        len(awards) + 1,
			FinalScore:  sc.FinalScore,
			CreatedAt:   now,
		})
	}
	return awards, nil
}
