package dart

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/smsh73/AAA/internal/contracts"
	"github.com/smsh73/AAA/pkg/config"
	"github.com/smsh73/AAA/pkg/httputil"
	"github.com/smsh73/AAA/pkg/logger"
)

const collaborator = "dart"

// DART status codes
const (
	statusOK     = "000"
	statusNoData = "013"
)

// Client handles communication with DART (Data Analysis, Retrieval and Transfer System) API
// ⭐ SSOT: DART API 호출은 이 클라이언트에서만
type Client struct {
	httpClient *http.Client
	logger     *logger.Logger
	apiKey     string
	baseURL    string

	mu        sync.Mutex
	corpCodes map[string]string // ticker → corp_code
}

// NewClient creates a new DART API client
// DART API requires legacy TLS configuration (RSA key exchange)
func NewClient(cfg config.DARTConfig, log *logger.Logger) *Client {
	return &Client{
		httpClient: newLegacyCompatibleClient(30 * time.Second),
		logger:     log.Module("dart"),
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
	}
}

// WithCorpCodes preloads the ticker → corp_code map and skips the corpCode.xml download
func (c *Client) WithCorpCodes(codes map[string]string) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.corpCodes = make(map[string]string, len(codes))
	for k, v := range codes {
		c.corpCodes[k] = v
	}
	return c
}

// newLegacyCompatibleClient creates an HTTP client compatible with legacy TLS servers
// DART server requires RSA key exchange cipher suites which Go 1.22+ no longer offers by default
func newLegacyCompatibleClient(timeout time.Duration) *http.Client {
	tlsCfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		MaxVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,

			// RSA KEX (legacy) - required for DART API
			tls.TLS_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_RSA_WITH_AES_128_CBC_SHA,
			tls.TLS_RSA_WITH_AES_256_CBC_SHA,
		},
	}

	tr := &http.Transport{
		Proxy:             http.ProxyFromEnvironment,
		ForceAttemptHTTP2: false,

		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,

		TLSHandshakeTimeout:   10 * time.Second,
		TLSClientConfig:       tlsCfg,
		MaxIdleConns:          20,
		MaxConnsPerHost:       5, // DART 과부하 방지
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}
}

// get performs an authenticated GET against path and returns the body
// 재시도는 Unit Executor가 담당하므로 여기서는 1회만 호출
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("crtfc_key", c.apiKey)
	fullURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, external(fmt.Errorf("HTTP request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, external(&httputil.StatusError{StatusCode: resp.StatusCode, URL: c.baseURL + path})
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, external(fmt.Errorf("read response: %w", err))
	}
	return body, nil
}

// apiStatus is the envelope every DART JSON response carries
type apiStatus struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// getJSON decodes a DART JSON response; 013(no data)은 ok=false로 반환
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, dest interface{}) (bool, error) {
	body, err := c.get(ctx, path, params)
	if err != nil {
		return false, err
	}

	var st apiStatus
	if err := json.Unmarshal(body, &st); err != nil {
		return false, external(fmt.Errorf("decode response: %w", err))
	}
	switch st.Status {
	case statusOK:
	case statusNoData:
		return false, nil
	default:
		// 020 = 요청 제한 초과
		return false, &contracts.ExternalError{
			Collaborator: collaborator,
			Temporary:    st.Status == "020",
			Err:          fmt.Errorf("API error: %s - %s", st.Status, st.Message),
		}
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return false, external(fmt.Errorf("decode response: %w", err))
	}
	return true, nil
}

func external(err error) error {
	return &contracts.ExternalError{
		Collaborator: collaborator,
		Temporary:    httputil.IsTemporary(err),
		Err:          err,
	}
}
