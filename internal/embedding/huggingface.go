package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"health-rag/internal/config"
)

var (
	ErrMissingCredentials = errors.New("embedding provider token is not configured")
	ErrUnauthorized       = errors.New("embedding provider rejected the token")
	ErrModelNotFound      = errors.New("embedding model not found")
	ErrUnexpectedFormat   = errors.New("unexpected embedding response format")
	ErrProvider           = errors.New("embedding provider request failed")
)

// HuggingFaceClient calls the hosted feature-extraction pipeline. It
// implements embeddings.EmbedderClient.
type HuggingFaceClient struct {
	baseURL string
	token   string
	model   string
	pooling string
	client  *http.Client
}

func NewHuggingFaceClient(cfg *config.EmbeddingConfig) *HuggingFaceClient {
	return &HuggingFaceClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   strings.TrimPrefix(cfg.Token, "Bearer "),
		model:   cfg.Model,
		pooling: cfg.Pooling,
		client:  &http.Client{Timeout: time.Duration(cfg.TimeoutSecs) * time.Second},
	}
}

// CreateEmbedding embeds each text with its own request.
func (c *HuggingFaceClient) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	if c.token == "" {
		return nil, ErrMissingCredentials
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		vec, err := c.embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, nil
}

func (c *HuggingFaceClient) embed(ctx context.Context, text string) ([]float32, error) {
	payload := struct {
		Inputs  string         `json:"inputs"`
		Options map[string]any `json:"options"`
	}{
		Inputs:  text,
		Options: map[string]any{"wait_for_model": true},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/pipeline/feature-extraction/%s", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrProvider, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, resp.Status)
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, c.model)
	case resp.StatusCode >= 300:
		log.Debug().Int("status", resp.StatusCode).Bytes("body", truncate(data, 512)).Msg("Embedding provider error")
		return nil, fmt.Errorf("%w: %s", ErrProvider, resp.Status)
	}

	return normalize(data, c.pooling)
}

// normalize turns the provider's response into a single vector.
//
//	none: [dim]
//	mean: [tokens][dim] or [1][tokens][dim], averaged over tokens
//	auto: whichever of the above the payload decodes as
func normalize(data []byte, pooling string) ([]float32, error) {
	if pooling != config.PoolingMean {
		var vec []float32
		if err := json.Unmarshal(data, &vec); err == nil {
			if len(vec) == 0 {
				return nil, fmt.Errorf("%w: empty vector", ErrUnexpectedFormat)
			}
			return vec, nil
		}
		if pooling == config.PoolingNone {
			return nil, fmt.Errorf("%w: expected a flat vector", ErrUnexpectedFormat)
		}
	}

	var tokens [][]float32
	if err := json.Unmarshal(data, &tokens); err == nil {
		return meanPool(tokens)
	}

	var batch [][][]float32
	if err := json.Unmarshal(data, &batch); err == nil {
		if len(batch) != 1 {
			return nil, fmt.Errorf("%w: expected one input, got %d", ErrUnexpectedFormat, len(batch))
		}
		return meanPool(batch[0])
	}

	return nil, fmt.Errorf("%w: %s", ErrUnexpectedFormat, truncate(data, 64))
}

// meanPool averages token vectors. Ragged input is rejected.
func meanPool(tokens [][]float32) ([]float32, error) {
	if len(tokens) == 0 || len(tokens[0]) == 0 {
		return nil, fmt.Errorf("%w: no token vectors", ErrUnexpectedFormat)
	}
	dim := len(tokens[0])
	sum := make([]float64, dim)
	for i, tok := range tokens {
		if len(tok) != dim {
			return nil, fmt.Errorf("%w: token %d has %d values, want %d", ErrUnexpectedFormat, i, len(tok), dim)
		}
		for j, v := range tok {
			sum[j] += float64(v)
		}
	}
	out := make([]float32, dim)
	n := float64(len(tokens))
	for j := range sum {
		out[j] = float32(sum[j] / n)
	}
	return out, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
