package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"xray-bot/api/internal/vision"
)

// Classifier спрашивает у Gemini вероятность каждого класса из Labels.
type Classifier struct {
	APIKey string
	Model  string
	Labels []string
}

func New(apiKey, model string, labels []string) *Classifier {
	return &Classifier{
		APIKey: strings.TrimSpace(apiKey),
		Model:  strings.TrimSpace(model),
		Labels: labels,
	}
}

func (c *Classifier) Name() string { return "gemini" }

func (c *Classifier) Classify(ctx context.Context, image []byte, mime string) (vision.RawClassification, error) {
	if c.APIKey == "" {
		return vision.RawClassification{}, errors.New("GEMINI_API_KEY is empty")
	}
	if len(c.Labels) == 0 {
		return vision.RawClassification{}, errors.New("gemini: no class labels configured")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(c.APIKey))
	if err != nil {
		return vision.RawClassification{}, err
	}
	defer cl.Close()

	m := cl.GenerativeModel(c.Model)
	if m == nil {
		return vision.RawClassification{}, fmt.Errorf("gemini: model is nil")
	}
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(0),
		ResponseMIMEType: "application/json",
	}
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt(c.Labels))},
	}

	parts := []genai.Part{
		genai.Text("Classify this X-ray image. Answer with JSON only."),
		&genai.Blob{MIMEType: mime, Data: image},
	}

	// Ретраи на случай 5xx/транзиентных сбоёв
	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		resp, err := m.GenerateContent(ctx, parts...)
		if err != nil {
			lastErr = err
			select {
			case <-ctx.Done():
				return vision.RawClassification{}, ctx.Err()
			case <-time.After(time.Duration(attempt) * 300 * time.Millisecond):
			}
			continue
		}
		txt := firstText(resp)
		if txt == "" {
			return vision.RawClassification{}, fmt.Errorf("gemini classify: empty response")
		}
		return parseProbs(txt, c.Labels)
	}
	return vision.RawClassification{}, lastErr
}

func systemPrompt(labels []string) string {
	var b strings.Builder
	b.WriteString("You are a radiology image classifier. Possible classes, in this exact order:\n")
	for i, l := range labels {
		fmt.Fprintf(&b, "%d. %s\n", i, l)
	}
	b.WriteString(`Return STRICT JSON: {"probs": [number, ...]} with exactly one probability in [0,1] per class, in the order above, summing to 1. No other text.`)
	return b.String()
}

// parseProbs превращает ответ модели в YOLO-форму: индекс i соответствует labels[i].
func parseProbs(txt string, labels []string) (vision.RawClassification, error) {
	txt = stripCodeFences(txt)
	var out struct {
		Probs []float64 `json:"probs"`
	}
	if err := json.Unmarshal([]byte(txt), &out); err != nil {
		return vision.RawClassification{}, fmt.Errorf("gemini classify: bad JSON: %w", err)
	}
	if len(out.Probs) != len(labels) {
		return vision.RawClassification{}, fmt.Errorf("gemini classify: got %d probs for %d labels", len(out.Probs), len(labels))
	}
	names := make(map[int]string, len(labels))
	for i, l := range labels {
		names[i] = l
	}
	return vision.RawClassification{Names: names, Probs: out.Probs}, nil
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
