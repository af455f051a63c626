package ranking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smsh73/AAA/internal/contracts"
)

func card(id, analyst string, score float64, sector string) *contracts.Scorecard {
	return &contracts.Scorecard{
		ID:         id,
		AnalystID:  analyst,
		CompanyID:  "c-" + id,
		Period:     "2025-Q1",
		Sector:     sector,
		FinalScore: score,
	}
}

func ids(cards []*contracts.Scorecard) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.ID
	}
	return out
}

func ranks(cards []*contracts.Scorecard) []int {
	out := make([]int, len(cards))
	for i, c := range cards {
		out[i] = c.Rank
	}
	return out
}

func TestRank_Dense(t *testing.T) {
	tests := []struct {
		name      string
		cards     []*contracts.Scorecard
		wantIDs   []string
		wantRanks []int
	}{
		{
			name:  "distinct scores",
			cards: []*contracts.Scorecard{card("a", "x", 70, ""), card("b", "y", 90, ""), card("c", "z", 80, "")},
			wantIDs:   []string{"b", "c", "a"},
			wantRanks: []int{1, 2, 3},
		},
		{
			name: "ties share rank and next rank is dense",
			cards: []*contracts.Scorecard{
				card("a", "x", 80, ""), card("b", "w", 90, ""), card("c", "v", 80, ""), card("d", "u", 70, ""),
			},
			wantIDs:   []string{"b", "c", "a", "d"},
			wantRanks: []int{1, 2, 2, 3},
		},
		{
			name: "same analyst ties break on scorecard id",
			cards: []*contracts.Scorecard{
				card("s2", "x", 55.5, ""), card("s1", "x", 55.5, ""),
			},
			wantIDs:   []string{"s1", "s2"},
			wantRanks: []int{1, 1},
		},
		{
			name: "float drift below two decimals ties",
			cards: []*contracts.Scorecard{
				card("a", "y", 77.05, ""), card("b", "x", 77.05000000001, ""),
			},
			wantIDs:   []string{"b", "a"},
			wantRanks: []int{1, 1},
		},
		{
			name:      "empty",
			cards:     nil,
			wantIDs:   []string{},
			wantRanks: []int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ranked := Rank(tt.cards)
			assert.Equal(t, tt.wantIDs, ids(ranked))
			assert.Equal(t, tt.wantRanks, ranks(ranked))
		})
	}
}

func TestRank_IdempotentAndOrderIndependent(t *testing.T) {
	a := []*contracts.Scorecard{
		card("1", "d", 60, ""), card("2", "c", 80, ""), card("3", "b", 80, ""), card("4", "a", 95, ""),
	}
	b := []*contracts.Scorecard{a[3], a[1], a[0], a[2]}

	first := RankMap(Rank(a))
	second := RankMap(Rank(a))
	reordered := RankMap(Rank(b))

	assert.Equal(t, first, second)
	assert.Equal(t, first, reordered)
	assert.Equal(t, map[string]int{"4": 1, "3": 2, "2": 2, "1": 3}, first)
}

func TestSelectAwards(t *testing.T) {
	now := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	ranked := Rank([]*contracts.Scorecard{
		card("a", "x1", 95, "방산"),
		card("b", "x2", 90, "반도체"),
		card("c", "x3", 85, "IT"),
		card("d", "x4", 80, "바이오"),
		card("e", "x5", 75, "AI"),
		card("f", "x6", 70, "소프트웨어"),
	})

	awards, err := SelectAwards(ranked, "AI", "2025-Q1", now)
	require.NoError(t, err)
	require.Len(t, awards, 3)

	assert.Equal(t, "b", awards[0].ScorecardID)
	assert.Equal(t, contracts.AwardGold, awards[0].Type)
	assert.Equal(t, "c", awards[1].ScorecardID)
	assert.Equal(t, contracts.AwardSilver, awards[1].Type)
	assert.Equal(t, "e", awards[2].ScorecardID)
	assert.Equal(t, contracts.AwardBronze, awards[2].Type)
	for i, a := range awards {
		assert.Equal(t, i+1, a.Rank)
		assert.Equal(t, "AI", a.Category)
		assert.NotEmpty(t, a.ID)
	}

	awards, err = SelectAwards(ranked, "방산", "2025-Q1", now)
	require.NoError(t, err)
	require.Len(t, awards, 1)
	assert.Equal(t, "a", awards[0].ScorecardID)

	awards, err = SelectAwards(ranked, "IPO", "2025-Q1", now)
	require.NoError(t, err)
	assert.Empty(t, awards)

	_, err = SelectAwards(ranked, "바이오", "2025-Q1", now)
	assert.True(t, contracts.IsValidation(err))
}

func TestCategories_Sorted(t *testing.T) {
	cats := Categories()
	assert.Len(t, cats, 4)
	assert.IsIncreasing(t, cats)
}
