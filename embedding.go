package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
)

// embedFunc turns free text into a vector. Dimensionality is stable for a
// given backend model.
type embedFunc func(text string) ([]float32, error)

const embedRetryAttempts = 3

type openAIEmbeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewOpenAIEmbedder returns an embedFunc backed by the OpenAI embeddings
// API. Transient failures (network, 429, 5xx) are retried with exponential
// backoff; anything else fails immediately.
func NewOpenAIEmbedder(apiKey, model string) embedFunc {
	return func(text string) ([]float32, error) {
		var vec []float32
		backoff := retry.WithMaxRetries(embedRetryAttempts, retry.NewExponential(500*time.Millisecond))
		err := retry.Do(context.Background(), backoff, func(ctx context.Context) error {
			v, err := fetchOpenAIEmbedding(apiKey, model, text)
			if err != nil {
				return err
			}
			vec = v
			return nil
		})
		if err != nil {
			log.Printf("embedding error model=%s: %v", model, err)
			return nil, err
		}
		return vec, nil
	}
}

func fetchOpenAIEmbedding(apiKey, model, text string) ([]float32, error) {
	reqBody := openAIEmbeddingRequest{Model: model, Input: text}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequest("POST", "https://api.openai.com/v1/embeddings", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := externalHTTPClient.Do(req)
	if err != nil {
		return nil, retry.RetryableError(fmt.Errorf("embeddings API error: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retry.RetryableError(fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode == 429 || resp.StatusCode >= 500 {
		return nil, retry.RetryableError(fmt.Errorf("embeddings API returned %d: %s", resp.StatusCode, string(respBody)))
	}

	var parsed openAIEmbeddingResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("parsing embeddings response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("embeddings API error: %s", parsed.Error.Message)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("no data in embeddings response")
	}
	return parsed.Data[0].Embedding, nil
}

// --- Vector blob codec ---

// Embeddings are persisted as little-endian float32 sequences.

func encodeEmbedding(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeEmbedding(blob []byte) []float32 {
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec
}

// --- Distance ---

// cosineDistance returns 1 - cosine similarity, so smaller means closer.
func cosineDistance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("embedding dimensionality mismatch: %d vs %d", len(a), len(b))
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, fmt.Errorf("zero-magnitude embedding")
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB)), nil
}
