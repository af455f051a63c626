package dart

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/smsh73/AAA/internal/contracts"
)

// reprt_code by quarter: 1Q 보고서, 반기보고서, 3Q 보고서, 사업보고서
var reportCodes = map[int]string{
	1: "11013",
	2: "11012",
	3: "11014",
	4: "11011",
}

// Account names in 단일회사 주요계정
const (
	accountRevenue         = "매출액"
	accountOperatingProfit = "영업이익"
	accountNetProfit       = "당기순이익"
)

type accountResponse struct {
	Accounts []account `json:"list"`
}

type account struct {
	AccountName string `json:"account_nm"`
	FSDiv       string `json:"fs_div"` // CFS 연결, OFS 별도
	Amount      string `json:"thstrm_amount"`
}

// FetchFinancials fetches reported revenue and profits for a ticker and quarter label ("2025-Q1")
// ⭐ SSOT: DART 재무 데이터 호출은 이 함수에서만
func (c *Client) FetchFinancials(ctx context.Context, ticker, period string) (*contracts.Financials, error) {
	var year, quarter int
	if _, err := fmt.Sscanf(period, "%d-Q%d", &year, &quarter); err != nil || reportCodes[quarter] == "" {
		return nil, &contracts.ExternalError{Collaborator: collaborator, Err: fmt.Errorf("invalid period %q", period)}
	}

	corpCode, err := c.CorpCode(ctx, ticker)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("corp_code", corpCode)
	params.Set("bsns_year", strconv.Itoa(year))
	params.Set("reprt_code", reportCodes[quarter])

	var resp accountResponse
	ok, err := c.getJSON(ctx, "/fnlttSinglAcnt.json", params, &resp)
	if err != nil {
		return nil, err
	}
	if !ok {
		// 아직 공시 전: 재시도해도 같은 결과
		return nil, &contracts.ExternalError{
			Collaborator: collaborator,
			Err:          fmt.Errorf("no financial statements for %s %s", ticker, period),
		}
	}

	fin := summarizeAccounts(resp.Accounts)
	fin.Ticker = ticker
	fin.Period = period

	c.logger.WithFields(map[string]interface{}{
		"ticker": ticker,
		"period": period,
	}).Debug("Fetched financials")
	return fin, nil
}

// summarizeAccounts picks revenue/profit lines, preferring consolidated (CFS) statements
func summarizeAccounts(accounts []account) *contracts.Financials {
	pick := func(name string) int64 {
		var ofs int64
		var found bool
		for _, a := range accounts {
			if strings.TrimSpace(a.AccountName) != name {
				continue
			}
			v, err := parseAmount(a.Amount)
			if err != nil {
				continue
			}
			if a.FSDiv == "CFS" {
				return v
			}
			if !found {
				ofs, found = v, true
			}
		}
		return ofs
	}

	return &contracts.Financials{
		Revenue:         pick(accountRevenue),
		OperatingProfit: pick(accountOperatingProfit),
		NetProfit:       pick(accountNetProfit),
	}
}

// parseAmount parses "1,234,567" / "-1,234"
func parseAmount(s string) (int64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" || s == "-" {
		return 0, fmt.Errorf("empty amount")
	}
	return strconv.ParseInt(s, 10, 64)
}
