package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/dvloznov/ledger-engine/internal/logger"
)

// DefaultModelName is the Gemini model used when none is configured.
const DefaultModelName = "gemini-2.5-flash"

// Document is a statement file handed to the parser.
type Document struct {
	Data     []byte
	MIMEType string
	// Categories the model may choose from. Empty means free-form.
	Categories []string
	Currency   string
}

// Parser turns a statement file into the raw model output
// { "transactions": [ ... ] }.
type Parser interface {
	ParseStatement(ctx context.Context, doc Document) (map[string]interface{}, error)
}

// GeminiConfig selects the model and, for Vertex AI, the project and location.
type GeminiConfig struct {
	Model    string
	Project  string
	Location string
}

// GeminiParser parses statements with a Gemini model.
type GeminiParser struct {
	client *genai.Client
	model  string
}

// NewGeminiParser creates a parser. With a project set the client talks to
// Vertex AI, otherwise it falls back to the environment (GOOGLE_API_KEY).
func NewGeminiParser(ctx context.Context, cfg GeminiConfig) (*GeminiParser, error) {
	cc := &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	}
	if cfg.Project != "" {
		cc.Backend = genai.BackendVertexAI
		cc.Project = cfg.Project
		cc.Location = cfg.Location
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("NewGeminiParser: create genai client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModelName
	}
	return &GeminiParser{client: client, model: model}, nil
}

// ParseStatement sends the document to Gemini and returns the parsed JSON output.
// It expects the model to return a STRICT JSON array of transactions.
func (p *GeminiParser) ParseStatement(ctx context.Context, doc Document) (map[string]interface{}, error) {
	mime := doc.MIMEType
	if mime == "" {
		mime = "application/pdf"
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: buildPrompt(doc)},
				{
					InlineData: &genai.Blob{
						MIMEType: mime,
						Data:     doc.Data,
					},
				},
			},
		},
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0),
	})
	if err != nil {
		return nil, fmt.Errorf("ParseStatement: generate content: %w", err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return nil, fmt.Errorf("ParseStatement: empty response from model")
	}
	log := logger.FromContext(ctx)
	log.Debug().Str("model", p.model).Int("response_bytes", len(rawText)).Msg("Model responded")

	return decodeModelOutput(rawText)
}

// decodeModelOutput cleans the raw model text and wraps the array under
// "transactions". Numbers are kept as json.Number so amounts never pass
// through float64.
func decodeModelOutput(rawText string) (map[string]interface{}, error) {
	clean := cleanModelJSON(rawText)

	dec := json.NewDecoder(bytes.NewReader([]byte(clean)))
	dec.UseNumber()
	var parsed interface{}
	if err := dec.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decodeModelOutput: unmarshal JSON: %w\nraw response: %s", err, rawText)
	}

	return map[string]interface{}{
		"transactions": parsed,
	}, nil
}

func buildPrompt(doc Document) string {
	var b strings.Builder
	b.WriteString("You are a financial statement parser for bank and credit card statements.\n\n")
	b.WriteString("Task:\n")
	b.WriteString("- Parse ALL transactions in the attached statement.\n")
	b.WriteString("- Output STRICT JSON only (no comments, no trailing commas, no extra text).\n")
	b.WriteString("- Output a JSON array of objects.\n\n")
	b.WriteString("Each object must have these fields:\n")
	b.WriteString("- \"date\": string, ISO format \"YYYY-MM-DD\"\n")
	b.WriteString("- \"description\": string\n")
	b.WriteString("- \"amount\": number (positive for money IN, negative for money OUT)\n")
	b.WriteString("- \"currency\": string (ISO 4217 code)\n")
	b.WriteString("- \"category\": string\n")
	b.WriteString("- \"installment\": string or null (e.g. \"02/10\" when the line is one installment of a purchase)\n\n")

	if len(doc.Categories) > 0 {
		b.WriteString("Use ONLY the following categories:\n")
		for _, c := range doc.Categories {
			b.WriteString("  - " + c + "\n")
		}
		b.WriteString("If you are unsure, use category \"Uncategorized\".\n\n")
	}
	if doc.Currency != "" {
		b.WriteString("If the currency is not printed, use \"" + doc.Currency + "\".\n\n")
	}

	b.WriteString("Rules:\n")
	b.WriteString("- If the statement has separate \"debit\" / \"credit\" columns, convert to a single signed \"amount\".\n")
	b.WriteString("- Skip running balances, totals and payment summaries; they are not transactions.\n\n")
	b.WriteString("Return ONLY valid raw JSON.\n")
	b.WriteString("Do NOT wrap the response in code fences.\n")
	b.WriteString("Output must begin with \"[\" and end with \"]\".\n")
	return b.String()
}

func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	// Handle ```json ... ``` or ``` ... ``` wrappers.
	if strings.HasPrefix(s, "```") {
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return s
		}
		s = strings.TrimSpace(s[idx+1:])
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	// Keep only from the first '[' to the last ']' if junk is left around the array.
	if start := strings.Index(s, "["); start != -1 {
		if end := strings.LastIndex(s, "]"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
