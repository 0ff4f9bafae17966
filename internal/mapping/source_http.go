package mapping

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultHTTPTimeout bounds each fetch against the mapping service.
const DefaultHTTPTimeout = 5 * time.Second

// HTTPSource fetches mappings from the external configuration service:
// GET {base}/mappings/{tenant}/{operation}?product=…&channel=…
// 200 returns the mapping document, 404 means no mapping is configured.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSource builds a source against baseURL. timeout <= 0 takes
// DefaultHTTPTimeout.
func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSource) FetchMapping(ctx context.Context, key Key) (Mapping, error) {
	endpoint := fmt.Sprintf("%s/mappings/%s/%s",
		s.baseURL, url.PathEscape(key.TenantID), url.PathEscape(key.OperationID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Mapping{}, fmt.Errorf("build mapping request: %w", err)
	}
	q := req.URL.Query()
	if key.ProductID != "" {
		q.Set("product", key.ProductID)
	}
	if key.Channel != "" {
		q.Set("channel", key.Channel)
	}
	req.URL.RawQuery = q.Encode()

	resp, err := s.client.Do(req)
	if err != nil {
		return Mapping{}, fmt.Errorf("fetch mapping: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var m Mapping
		if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
			return Mapping{}, fmt.Errorf("decode mapping response: %w", err)
		}
		if m.ProcessID == "" {
			return Mapping{}, fmt.Errorf("mapping response has empty process_id")
		}
		return m, nil
	case http.StatusNotFound:
		return Mapping{}, ErrNoMapping
	default:
		return Mapping{}, fmt.Errorf("mapping service returned status %d", resp.StatusCode)
	}
}
