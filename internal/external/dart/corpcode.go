package dart

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/smsh73/AAA/internal/contracts"
)

// corpCodeList is CORPCODE.xml inside the corpCode.xml zip
type corpCodeList struct {
	Items []struct {
		CorpCode  string `xml:"corp_code"`
		CorpName  string `xml:"corp_name"`
		StockCode string `xml:"stock_code"`
	} `xml:"list"`
}

// CorpCode resolves a listed ticker to its DART corp_code
// 최초 호출 시 전체 목록을 내려받아 캐시
func (c *Client) CorpCode(ctx context.Context, ticker string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.corpCodes == nil {
		codes, err := c.downloadCorpCodes(ctx)
		if err != nil {
			return "", err
		}
		c.corpCodes = codes
		c.logger.WithField("count", len(codes)).Info("DART corp codes loaded")
	}

	code, ok := c.corpCodes[ticker]
	if !ok {
		return "", &contracts.ExternalError{
			Collaborator: collaborator,
			Err:          fmt.Errorf("no corp_code for ticker %s", ticker),
		}
	}
	return code, nil
}

func (c *Client) downloadCorpCodes(ctx context.Context) (map[string]string, error) {
	body, err := c.get(ctx, "/corpCode.xml", nil)
	if err != nil {
		return nil, err
	}
	codes, err := parseCorpCodeZip(body)
	if err != nil {
		return nil, external(err)
	}
	return codes, nil
}

// parseCorpCodeZip maps stock_code → corp_code for listed companies
func parseCorpCodeZip(body []byte) (map[string]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, fmt.Errorf("open corp code zip: %w", err)
	}
	if len(zr.File) == 0 {
		return nil, fmt.Errorf("corp code zip is empty")
	}

	f, err := zr.File[0].Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", zr.File[0].Name, err)
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", zr.File[0].Name, err)
	}

	var list corpCodeList
	if err := xml.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode corp codes: %w", err)
	}

	codes := make(map[string]string, len(list.Items))
	for _, it := range list.Items {
		stock := strings.TrimSpace(it.StockCode)
		if stock == "" {
			continue // 비상장
		}
		codes[stock] = strings.TrimSpace(it.CorpCode)
	}
	return codes, nil
}
