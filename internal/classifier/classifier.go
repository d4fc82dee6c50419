package classifier

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"sort"
)

// maxImageBytes caps a single image download
const maxImageBytes = 20 << 20

// Predictor runs the vision model over raw image bytes and returns one logit
// per ImageNet label
type Predictor interface {
	Logits(ctx context.Context, image []byte, contentType string) ([]float64, error)
	// Ready fails when the model cannot serve predictions
	Ready(ctx context.Context) error
}

// Decision is the outcome of ranking one image's logits
type Decision struct {
	IsCat bool
	// CatRank and BadRank are positions within the top labels, -1 when absent
	CatRank   int
	BadRank   int
	BadLabels []string
}

type Classifier struct {
	httpClient *http.Client
	predictor  Predictor
	log        *slog.Logger
}

func New(httpClient *http.Client, predictor Predictor, log *slog.Logger) *Classifier {
	return &Classifier{
		httpClient: httpClient,
		predictor:  predictor,
		log:        log,
	}
}

// Ready checks the model is loaded before a scan starts
func (c *Classifier) Ready(ctx context.Context) error {
	if err := c.predictor.Ready(ctx); err != nil {
		return fmt.Errorf("vision model unavailable: %w", err)
	}
	return nil
}

// Classify downloads the image at imageURL and reports whether it shows a cat
func (c *Classifier) Classify(ctx context.Context, imageURL string) (bool, error) {
	data, contentType, err := c.fetch(ctx, imageURL)
	if err != nil {
		return false, err
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return false, fmt.Errorf("decoding image %s: %w", imageURL, err)
	}

	logits, err := c.predictor.Logits(ctx, data, contentType)
	if err != nil {
		return false, fmt.Errorf("running model on %s: %w", imageURL, err)
	}

	d, err := Decide(logits)
	if err != nil {
		return false, err
	}
	c.log.Debug("classified image",
		"url", imageURL,
		"cat_rank", d.CatRank,
		"bad_rank", d.BadRank,
		"bad_labels", d.BadLabels,
		"is_cat", d.IsCat,
	)
	return d.IsCat, nil
}

func (c *Classifier) fetch(ctx context.Context, imageURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("creating image request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetching image %s: %w", imageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetching image %s: status %d", imageURL, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("reading image %s: %w", imageURL, err)
	}
	if len(data) > maxImageBytes {
		return nil, "", fmt.Errorf("image %s exceeds %d bytes", imageURL, maxImageBytes)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// Decide ranks logits descending and applies the cat rule to the top TopK:
// a cat label must rank above the first bad label.
func Decide(logits []float64) (Decision, error) {
	if len(logits) < TopK {
		return Decision{}, fmt.Errorf("model returned %d logits, need at least %d", len(logits), TopK)
	}

	order := make([]int, len(logits))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return logits[order[a]] > logits[order[b]]
	})

	d := Decision{CatRank: -1, BadRank: -1}
	for rank, label := range order[:TopK] {
		if IsCatLabel(label) && d.CatRank < 0 {
			d.CatRank = rank
		}
		if IsBadLabel(label) {
			if d.BadRank < 0 {
				d.BadRank = rank
			}
			d.BadLabels = append(d.BadLabels, badLabels[label])
		}
	}
	d.IsCat = d.CatRank >= 0 && (d.BadRank < 0 || d.CatRank < d.BadRank)
	return d, nil
}
