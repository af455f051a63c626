package contracts

import "time"

// Scorecard is a period-scoped snapshot of an analyst's final score for one company
// key: (AnalystID, Period, CompanyID)
type Scorecard struct {
	ID           string              `json:"id"`
	AnalystID    string              `json:"analyst_id"`
	CompanyID    string              `json:"company_id"`
	Period       string              `json:"period"`
	Sector       string              `json:"sector"`
	FinalScore   float64             `json:"final_score"`
	Rank         int                 `json:"ranking"` // 0 = 미산정
	KPIScores    map[KPIType]float64 `json:"kpi_scores"`
	EvaluationID string              `json:"evaluation_id"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// AwardType is the medal for ranks 1-3 within a category
type AwardType string

const (
	AwardGold   AwardType = "gold"
	AwardSilver AwardType = "silver"
	AwardBronze AwardType = "bronze"
)

// AwardTypeForPlace maps a 1-based placing to its medal
func AwardTypeForPlace(place int) (AwardType, bool) {
	switch place {
	case 1:
		return AwardGold, true
	case 2:
		return AwardSilver, true
	case 3:
		return AwardBronze, true
	}
	return "", false
}

// Award is a medal granted to a scorecard for a category and period
type Award struct {
	ID          string    `json:"id"`
	ScorecardID string    `json:"scorecard_id"`
	AnalystID   string    `json:"analyst_id"`
	Category    string    `json:"category"`
	Period      string    `json:"period"`
	Type        AwardType `json:"award_type"`
	Rank        int       `json:"rank"`
	FinalScore  float64   `json:"final_score"`
	CreatedAt   time.Time `json:"created_at"`
}

// AwardCategories maps an award category to the sectors it covers
// ⭐ SSOT: 시상 카테고리-섹터 매핑
var AwardCategories = map[string][]string{
	"AI":    {"AI", "반도체", "IT", "소프트웨어"},
	"2차전지": {"2차전지", "배터리", "전기차", "신에너지"},
	"방산":    {"방산", "국방", "항공우주"},
	"IPO":   {"IPO", "신규상장"},
}
