package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"intake-server/pkg/metrics"
	"intake-server/pkg/transcript"

	"github.com/sirupsen/logrus"
)

const defaultChatEndpoint = "https://api.openai.com/v1/chat/completions"

// FieldAnnotator abstracts the LLM extraction call so the orchestrator stays
// testable without network access.
type FieldAnnotator interface {
	ExtractFields(ctx context.Context, t transcript.Transcript, category string) (*LLMFields, error)
}

// HTTPDoer allows tests to fake HTTP transport.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// LLMFields is the schema-constrained output of one extraction call. Every
// field is nullable; the model is instructed to prefer null over a guess.
type LLMFields struct {
	Name        *string     `json:"name"`
	Email       *string     `json:"email"`
	Phone       *string     `json:"phone"`
	ClaimNumber *string     `json:"claim_number"`
	Purpose     *string     `json:"purpose"`
	CaseFields  []CaseField `json:"case_fields"`
}

// CaseField is one category-specific fact pulled from the transcript
type CaseField struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// OpenAIClient calls Chat Completions with strict JSON schema output
type OpenAIClient struct {
	logger     *logrus.Logger
	apiKey     string
	model      string
	endpoint   string
	httpClient HTTPDoer
}

// NewOpenAIClient creates a client; a nil httpClient gets a default with the
// given request timeout baked in.
func NewOpenAIClient(logger *logrus.Logger, apiKey, model string, timeout time.Duration, httpClient HTTPDoer) *OpenAIClient {
	if httpClient == nil {
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &OpenAIClient{
		logger:     logger,
		apiKey:     apiKey,
		model:      model,
		endpoint:   defaultChatEndpoint,
		httpClient: httpClient,
	}
}

// ExtractFields requests strict structured output for one transcript
func (c *OpenAIClient) ExtractFields(ctx context.Context, t transcript.Transcript, category string) (*LLMFields, error) {
	fields, err := c.extractFields(ctx, t, category)
	if err != nil {
		metrics.RecordLLMRequest(c.model, "error")
		metrics.RecordLLMError(c.model, "request")
		return nil, err
	}

	metrics.RecordLLMRequest(c.model, "success")
	return fields, nil
}

func (c *OpenAIClient) extractFields(ctx context.Context, t transcript.Transcript, category string) (*LLMFields, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is not set in the environment")
	}

	turnsJSON, err := json.Marshal(t.Turns)
	if err != nil {
		return nil, fmt.Errorf("marshal turns: %w", err)
	}

	payload, err := json.Marshal(chatCompletionsRequest{
		Model:       c.model,
		Temperature: 0,
		Messages: []chatMessage{
			{Role: "system", Content: extractionSystemPrompt},
			{Role: "user", Content: buildUserPrompt(category, string(turnsJSON))},
		},
		ResponseFormat: responseFormat{
			Type: "json_schema",
			JSONSchema: responseJSONSchema{
				Name:   intakeFieldsSchemaName,
				Strict: true,
				Schema: intakeFieldsSchema,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal openai request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	request.Header.Set("Authorization", "Bearer "+c.apiKey)
	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("read openai response: %w", err)
	}

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		var apiErr openAIErrorEnvelope
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("openai status %d: %s", response.StatusCode, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("openai status %d: %s", response.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed chatCompletionsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode openai response: %w", err)
	}

	if parsed.Error.Message != "" {
		return nil, fmt.Errorf("openai error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}

	message := parsed.Choices[0].Message
	if strings.TrimSpace(message.Refusal) != "" {
		return nil, fmt.Errorf("openai refusal: %s", strings.TrimSpace(message.Refusal))
	}

	content, err := parseMessageContent(message.Content)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("openai returned empty content")
	}

	var fields LLMFields
	if err := json.Unmarshal([]byte(content), &fields); err != nil {
		return nil, fmt.Errorf("openai content does not match schema: %w", err)
	}

	return &fields, nil
}

func parseMessageContent(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, nil
	}

	var asParts []responseContentPart
	if err := json.Unmarshal(raw, &asParts); err == nil {
		var builder strings.Builder
		for _, part := range asParts {
			if part.Type == "text" {
				builder.WriteString(part.Text)
			}
		}
		return builder.String(), nil
	}

	return "", fmt.Errorf("unsupported openai message content format: %s", string(raw))
}

func buildUserPrompt(category, turnsJSON string) string {
	return fmt.Sprintf(`Call category: %s

Transcript turns (chronological):
%s

Task:
Fill the schema with facts the caller actually stated:
- name: the caller's own name as given in dialogue
- email: ONLY if the caller spelled or confirmed it aloud; never infer one
- phone: ONLY if spoken and confirmed in dialogue; caller-ID metadata does not count
- claim_number: any claim/policy/file number read back during the call
- purpose: one sentence on why the caller called
- case_fields: category-specific facts (incident date, injury type, insurer,
  opposing party, treatment provider) as field/value pairs.`, category, turnsJSON)
}

const extractionSystemPrompt = `You are an intake assistant for a legal call center.
You MUST output only JSON matching the provided JSON Schema (strict).
Use ONLY the transcript turns as evidence.
Missing data is always preferable to wrong data: when a value was not clearly
stated in the dialogue, output null (or an empty case_fields list).
Never fabricate, pad, or normalize a number the caller did not say.`

type chatCompletionsRequest struct {
	Model          string         `json:"model"`
	Temperature    float64        `json:"temperature"`
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type       string             `json:"type"`
	JSONSchema responseJSONSchema `json:"json_schema"`
}

type responseJSONSchema struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type chatCompletionsResponse struct {
	Choices []chatChoice        `json:"choices"`
	Error   openAIErrorResponse `json:"error"`
}

type chatChoice struct {
	Message chatMessageResponse `json:"message"`
}

type chatMessageResponse struct {
	Content json.RawMessage `json:"content"`
	Refusal string          `json:"refusal"`
}

type responseContentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type openAIErrorEnvelope struct {
	Error openAIErrorResponse `json:"error"`
}

type openAIErrorResponse struct {
	Message string `json:"message"`
}
