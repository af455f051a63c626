package contracts

import (
	"context"
	"time"
)

// ⭐ SSOT: 외부 collaborator 인터페이스 정의는 여기서만

// SearchResult is one hit from a web/news search
type SearchResult struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	Snippet     string    `json:"snippet"`
	PublishedAt time.Time `json:"published_at,omitempty"`
}

// WebSearcher runs a free-text search (sns / media units)
type WebSearcher interface {
	SearchWeb(ctx context.Context, query string) ([]SearchResult, error)
}

// Financials are reported results for one ticker and period
type Financials struct {
	Ticker          string `json:"ticker"`
	Period          string `json:"period"`
	Revenue         int64  `json:"revenue"`
	OperatingProfit int64  `json:"operating_profit"`
	NetProfit       int64  `json:"net_profit"`
}

// FinancialsFetcher fetches reported financials (performance units)
type FinancialsFetcher interface {
	FetchFinancials(ctx context.Context, ticker, period string) (*Financials, error)
}

// PriceRange is the daily close series for a ticker
type PriceRange struct {
	Ticker      string      `json:"ticker"`
	Dates       []time.Time `json:"dates"`
	ClosePrices []int64     `json:"close_prices"`
}

// PriceFetcher fetches closes over [from, to] (target_price units)
type PriceFetcher interface {
	FetchPriceRange(ctx context.Context, ticker string, from, to time.Time) (*PriceRange, error)
}

// TextGenerator produces model text for a prompt
type TextGenerator interface {
	GenerateText(ctx context.Context, model, prompt string) (string, error)
}
