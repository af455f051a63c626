package naver

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/smsh73/AAA/internal/contracts"
)

// SearchWeb runs a Naver news search and returns the first result page
// sns / media unit의 언급 수집에 사용
func (c *Client) SearchWeb(ctx context.Context, query string) ([]contracts.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &contracts.ExternalError{Collaborator: collaborator, Err: fmt.Errorf("empty search query")}
	}

	params := url.Values{}
	params.Set("where", "news")
	params.Set("query", query)
	params.Set("sort", "1") // 최신순

	body, err := c.fetch(ctx, c.searchURL, "/search.naver", params)
	if err != nil {
		return nil, err
	}

	results, err := parseNewsHTML(body)
	if err != nil {
		return nil, &contracts.ExternalError{Collaborator: collaborator, Err: fmt.Errorf("parse search page: %w", err)}
	}

	c.logger.WithFields(map[string]interface{}{
		"query": query,
		"count": len(results),
	}).Debug("News search completed")
	return results, nil
}

// parseNewsHTML extracts news items from the search result page
func parseNewsHTML(body []byte) ([]contracts.SearchResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var results []contracts.SearchResult
	doc.Find("div.news_area").Each(func(_ int, item *goquery.Selection) {
		link := item.Find("a.news_tit").First()
		href, ok := link.Attr("href")
		if !ok || href == "" {
			return
		}

		title, _ := link.Attr("title")
		if title == "" {
			title = strings.TrimSpace(link.Text())
		}

		results = append(results, contracts.SearchResult{
			Title:   title,
			URL:     href,
			Source:  strings.TrimSpace(strings.TrimSuffix(item.Find("a.info.press").First().Text(), "언론사 선정")),
			Snippet: strings.TrimSpace(item.Find(".news_dsc").First().Text()),
		})
	})
	return results, nil
}
