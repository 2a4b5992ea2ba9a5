package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"freelance-office/internal/core"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
	"github.com/openai/openai-go/shared/constant"
)

// DraftService proposes quote line items from a free-text brief.
type DraftService interface {
	DraftQuote(ctx context.Context, brief string, currency string) (*core.QuoteDraft, error)
}

type Agent struct {
	client *openai.Client
	model  string
}

func NewAgent(apiKey, model string) *Agent {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	if model == "" {
		model = string(shared.ChatModelGPT4o)
	}
	return &Agent{client: &client, model: model}
}

func (a *Agent) DraftQuote(ctx context.Context, brief string, currency string) (*core.QuoteDraft, error) {
	brief = strings.TrimSpace(brief)
	if brief == "" {
		return nil, fmt.Errorf("%w: brief is required", core.ErrValidation)
	}

	prompt := fmt.Sprintf(`You are an experienced freelance consultant preparing a quote.
Your goal is to turn a client's project brief into priced line items.
Rules:
1. Split the work into concrete deliverables, one line item each.
2. Quantities are whole numbers (hours, pages, units). Never zero.
3. Unit prices are exact decimal strings with two decimals (e.g. "85.00") in %s.
4. List assumptions and exclusions in the notes.
5. Provide a confidence score (0.0-1.0) and explain your reasoning.

Brief: %s`, currency, brief)

	schemaJSON, err := json.Marshal(generateSchema())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	var schemaMap map[string]any
	if err := json.Unmarshal(schemaJSON, &schemaMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema to map: %w", err)
	}

	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(a.model),
		Input: responses.ResponseNewParamsInputUnion{
			OfString: param.NewOpt(prompt),
		},
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Type:        constant.JSONSchema("json_schema"),
					Name:        "quote_draft",
					Strict:      param.NewOpt(true),
					Schema:      schemaMap,
					Description: param.NewOpt("Proposed line items for a freelance quote"),
				},
			},
		},
	}

	resp, err := a.client.Responses.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai responses error: %w", err)
	}

	content := resp.OutputText()
	if content == "" {
		return nil, fmt.Errorf("empty response content")
	}
	return ParseDraft(content)
}

// ParseDraft decodes, normalizes and validates a model response.
func ParseDraft(content string) (*core.QuoteDraft, error) {
	var draft core.QuoteDraft
	if err := json.Unmarshal([]byte(content), &draft); err != nil {
		return nil, fmt.Errorf("failed to parse completion: %w", err)
	}
	draft.Normalize()
	if err := draft.Validate(); err != nil {
		return nil, fmt.Errorf("draft validation failed: %w", err)
	}
	return &draft, nil
}

func generateSchema() interface{} {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v core.QuoteDraft
	return reflector.Reflect(v)
}
