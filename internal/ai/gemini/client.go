// Package gemini talks to Google's Gemini API for embeddings and short text
// generation.
package gemini

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// Config selects models and the embedding size.
type Config struct {
	APIKey         string
	EmbeddingModel string
	TextModel      string
	// Dimension is the requested embedding length. It must match the vector
	// index collection.
	Dimension int32
}

// Client implements index.Embedder and insight.Narrator.
type Client struct {
	genai *genai.Client
	cfg   Config
}

func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "text-embedding-004"
	}
	if cfg.TextModel == "" {
		cfg.TextModel = "gemini-2.0-flash"
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = 768
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("init gemini client: %w", err)
	}
	return &Client{genai: c, cfg: cfg}, nil
}

var errEmptyEmbedding = errors.New("gemini returned no embedding")

// Embed returns the embedding of text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	dim := c.cfg.Dimension
	res, err := c.genai.Models.EmbedContent(ctx, c.cfg.EmbeddingModel, genai.Text(text), &genai.EmbedContentConfig{
		OutputDimensionality: &dim,
	})
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}
	if res == nil || len(res.Embeddings) == 0 || len(res.Embeddings[0].Values) == 0 {
		return nil, errEmptyEmbedding
	}
	return res.Embeddings[0].Values, nil
}

// GenerateText answers prompt under an optional system instruction.
func (c *Client) GenerateText(ctx context.Context, prompt, systemPrompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{}
	if systemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: systemPrompt}}}
	}
	resp, err := c.genai.Models.GenerateContent(ctx, c.cfg.TextModel, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	return resp.Text(), nil
}
