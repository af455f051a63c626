package naver

import (
	"context"
	"fmt"
	"net/url"

	"github.com/smsh73/AAA/internal/contracts"
	"github.com/smsh73/AAA/pkg/config"
	"github.com/smsh73/AAA/pkg/httputil"
	"github.com/smsh73/AAA/pkg/logger"
)

const collaborator = "naver"

// Client handles communication with Naver Finance and Naver news search
// ⭐ SSOT: Naver 호출은 이 클라이언트에서만
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
	searchURL  string
}

// NewClient creates a new Naver client
func NewClient(httpClient *httputil.Client, cfg config.NaverConfig, log *logger.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     log.Module("naver"),
		baseURL:    cfg.BaseURL,
		searchURL:  cfg.SearchBaseURL,
	}
}

// fetch GETs base+path with params and returns the raw body
func (c *Client) fetch(ctx context.Context, base, path string, params url.Values) ([]byte, error) {
	fullURL := fmt.Sprintf("%s%s", base, path)
	if len(params) > 0 {
		fullURL = fmt.Sprintf("%s?%s", fullURL, params.Encode())
	}

	body, err := c.httpClient.GetBody(ctx, fullURL)
	if err != nil {
		return nil, external(err)
	}
	return body, nil
}

// external wraps a transport error; 5xx/429/timeout은 재시도 대상
func external(err error) error {
	return &contracts.ExternalError{
		Collaborator: collaborator,
		Temporary:    httputil.IsTemporary(err),
		Err:          err,
	}
}
