package naver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/smsh73/AAA/internal/contracts"
)

var priceRowRe = regexp.MustCompile(`\["(\d{8})",\s*(\d+),\s*(\d+),\s*(\d+),\s*(\d+),\s*(\d+)\]`)

// dailyPrice is one row of the fchart response
type dailyPrice struct {
	TradeDate  time.Time
	ClosePrice int64
	Volume     int64
}

// FetchPriceRange fetches daily closes for a ticker over [from, to]
// ⭐ SSOT: Naver Finance 가격 API 호출은 이 함수에서만
func (c *Client) FetchPriceRange(ctx context.Context, ticker string, from, to time.Time) (*contracts.PriceRange, error) {
	if ticker == "" {
		return nil, &contracts.ExternalError{Collaborator: collaborator, Err: fmt.Errorf("ticker is required")}
	}

	params := url.Values{}
	params.Set("symbol", ticker)
	params.Set("requestType", "1")
	params.Set("startTime", from.Format("20060102"))
	params.Set("endTime", to.Format("20060102"))
	params.Set("timeframe", "day")

	body, err := c.fetch(ctx, c.baseURL, "/siseJson.naver", params)
	if err != nil {
		return nil, err
	}

	rows := parsePriceResponse(string(body))
	sort.Slice(rows, func(i, j int) bool { return rows[i].TradeDate.Before(rows[j].TradeDate) })

	out := &contracts.PriceRange{Ticker: ticker}
	lo := truncateDay(from)
	hi := truncateDay(to)
	for _, r := range rows {
		if r.TradeDate.Before(lo) || r.TradeDate.After(hi) {
			continue
		}
		out.Dates = append(out.Dates, r.TradeDate)
		out.ClosePrices = append(out.ClosePrices, r.ClosePrice)
	}

	c.logger.WithFields(map[string]interface{}{
		"ticker": ticker,
		"count":  len(out.ClosePrices),
	}).Debug("Fetched prices")
	return out, nil
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// parsePriceResponse parses the fchart body (JSON-ish array with single quotes)
func parsePriceResponse(body string) []dailyPrice {
	body = strings.TrimSpace(body)
	body = strings.ReplaceAll(body, "'", "\"")

	var raw [][]interface{}
	if err := json.Unmarshal([]byte(body), &raw); err == nil {
		return parsePriceJSON(raw)
	}

	// JSON 실패 시 정규식 fallback
	return parsePriceRegex(body)
}

// parsePriceJSON parses [[날짜, 시가, 고가, 저가, 종가, 거래량, ...], ...]; 첫 행은 헤더
func parsePriceJSON(raw [][]interface{}) []dailyPrice {
	var prices []dailyPrice
	for i, row := range raw {
		if i == 0 || len(row) < 6 {
			continue
		}

		dateStr, ok := row[0].(string)
		if !ok {
			continue
		}
		tradeDate, err := time.Parse("20060102", strings.TrimSpace(dateStr))
		if err != nil {
			continue
		}

		prices = append(prices, dailyPrice{
			TradeDate:  tradeDate,
			ClosePrice: toInt64(row[4]),
			Volume:     toInt64(row[5]),
		})
	}
	return prices
}

func parsePriceRegex(body string) []dailyPrice {
	var prices []dailyPrice
	for _, m := range priceRowRe.FindAllStringSubmatch(body, -1) {
		tradeDate, err := time.Parse("20060102", m[1])
		if err != nil {
			continue
		}
		closePrice, _ := strconv.ParseInt(m[5], 10, 64)
		volume, _ := strconv.ParseInt(m[6], 10, 64)
		prices = append(prices, dailyPrice{TradeDate: tradeDate, ClosePrice: closePrice, Volume: volume})
	}
	return prices
}

// toInt64 converts various types to int64
func toInt64(v interface{}) int64 {
	switch val := v.(type) {
	case float64:
		return int64(val)
	case int64:
		return val
	case int:
		return int64(val)
	case string:
		n, _ := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		return n
	default:
		return 0
	}
}
