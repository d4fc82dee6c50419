package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var _ Predictor = (*HTTPPredictor)(nil)

// HTTPPredictor posts image bytes to a model server that answers with
// {"logits": [...]}
type HTTPPredictor struct {
	endpoint   string
	httpClient *http.Client
}

func NewHTTPPredictor(endpoint string, httpClient *http.Client) *HTTPPredictor {
	return &HTTPPredictor{
		endpoint:   endpoint,
		httpClient: httpClient,
	}
}

// Ready asks the model server for the model's status. Servers following the
// ":predict" convention answer on the endpoint without that suffix.
func (p *HTTPPredictor) Ready(ctx context.Context) error {
	statusURL := strings.TrimSuffix(p.endpoint, ":predict")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("model status %d", resp.StatusCode)
	}
	return nil
}

func (p *HTTPPredictor) Logits(ctx context.Context, image []byte, contentType string) ([]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("model API error %d: %s", resp.StatusCode, string(body))
	}

	var out struct {
		Logits []float64 `json:"logits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return out.Logits, nil
}
