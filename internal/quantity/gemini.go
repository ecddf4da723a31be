package quantity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	genai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/noah-isme/shopping-optimizer/internal/cart"
)

// DefaultModel is used when no model name is configured.
const DefaultModel = "gemini-1.5-flash"

// ErrEmptyReply is returned when the model produced no usable text.
var ErrEmptyReply = errors.New("quantity: empty model reply")

// Generator produces a text completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeminiGenerator calls the Google Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiGenerator opens a Gemini client. Close releases it.
func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, errors.New("quantity: gemini api key required")
	}
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	m := client.GenerativeModel(model)
	m.ResponseMIMEType = "application/json"
	m.SetTemperature(0.2)
	return &GeminiGenerator{client: client, model: m}, nil
}

// Generate implements Generator.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyReply
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String(), nil
}

// Close releases the underlying client.
func (g *GeminiGenerator) Close() error {
	return g.client.Close()
}

// Model asks a Generator for pack-size adjustments.
type Model struct {
	Gen Generator
}

type promptItem struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit,omitempty"`
	Category string  `json:"category,omitempty"`
}

const instructions = `You adjust grocery quantities to sizes a shopper can actually buy.
Return only JSON of the form {"items":[{"name":"...","quantity":1.5,"unit":"kg"}]}.
Keep every name exactly as given. Do not add or remove items. Quantities must be positive.
Items:
`

// Optimize implements Optimizer.
func (m Model) Optimize(ctx context.Context, items []cart.LineItem) (Result, error) {
	if len(items) == 0 {
		return unchanged(items), nil
	}
	if m.Gen == nil {
		return Result{}, errors.New("quantity: generator not configured")
	}
	payload := make([]promptItem, len(items))
	for i, it := range items {
		payload[i] = promptItem{Name: it.Name, Quantity: it.Quantity, Unit: it.Unit, Category: it.Category}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Result{}, err
	}
	reply, err := m.Gen.Generate(ctx, instructions+string(data))
	if err != nil {
		return Result{}, err
	}
	suggestions, err := ParseReply(reply)
	if err != nil {
		return Result{}, err
	}
	return Apply(items, suggestions), nil
}

// ParseReply extracts suggestions from a model reply, tolerating markdown
// code fences and a bare array.
func ParseReply(reply string) ([]Suggestion, error) {
	body := strings.TrimSpace(reply)
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrEmptyReply
	}
	if strings.HasPrefix(body, "[") {
		var list []Suggestion
		if err := json.Unmarshal([]byte(body), &list); err != nil {
			return nil, fmt.Errorf("decode model reply: %w", err)
		}
		return list, nil
	}
	var wrapped struct {
		Items []Suggestion `json:"items"`
	}
	if err := json.Unmarshal([]byte(body), &wrapped); err != nil {
		return nil, fmt.Errorf("decode model reply: %w", err)
	}
	return wrapped.Items, nil
}
