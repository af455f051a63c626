package ranking

import (
	"sort"

	"github.com/smsh73/AAA/internal/contracts"
	"github.com/smsh73/AAA/internal/scoring"
)

// Rank orders scorecards of one period and assigns dense 1-based ranks in place
// ⭐ SSOT: 순위 로직은 여기서만
// 정렬: final score desc → analyst id asc → scorecard id asc (저장소 순서와 무관하게 결정적)
func Rank(cards []*contracts.Scorecard) []*contracts.Scorecard {
	sorted := append([]*contracts.Scorecard(nil), cards...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		sa, sb := scoring.Round2(a.FinalScore), scoring.Round2(b.FinalScore)
		if sa != sb {
			return sa > sb
		}
		return tieBreak(a, b)
	})

	rank := 0
	var prev float64
	for i, sc := range sorted {
		score := scoring.Round2(sc.FinalScore)
		if i == 0 || score != prev {
			rank++
			prev = score
		}
		sc.Rank = rank
	}
	return sorted
}

// RankMap returns scorecard id → rank for a ranked slice
func RankMap(ranked []*contracts.Scorecard) map[string]int {
	out := make(map[string]int, len(ranked))
	for _, sc := range ranked {
		out[sc.ID] = sc.Rank
	}
	return out
}

// sortByRank orders already-ranked cards for display
func sortByRank(cards []*contracts.Scorecard) {
	sort.SliceStable(cards, func(i, j int) bool {
		if cards[i].Rank != cards[j].Rank {
			return cards[i].Rank < cards[j].Rank
		}
		return tieBreak(cards[i], cards[j])
	})
}

func tieBreak(a, b *contracts.Scorecard) bool {
	if a.AnalystID != b.AnalystID {
		return a.AnalystID < b.AnalystID
	}
	return a.ID < b.ID
}
