// In file: internal/llm/gemini_client.go
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dileep-u-k/mcp-gateway/internal/tools"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

// GeminiClient is the client for interacting with Google's Gemini models.
type GeminiClient struct {
	client  *genai.Client
	modelID string
}

var _ LLMClient = (*GeminiClient)(nil)

func NewGeminiClient(apiKey, modelID string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key cannot be empty")
	}
	if modelID == "" {
		modelID = DefaultModel
	}
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiClient{client: client, modelID: modelID}, nil
}

// Close releases the underlying API client.
func (c *GeminiClient) Close() error {
	return c.client.Close()
}

// Generate performs a standard, blocking request to the Gemini API.
// A fresh GenerativeModel is derived per call so that concurrent requests
// with different configs never share mutable model state.
func (c *GeminiClient) Generate(
	ctx context.Context,
	messages []Message,
	config *GenerationConfig,
	availableTools []tools.Tool,
) (*GenerationResult, error) {
	if len(messages) == 0 {
		return nil, errors.New("no messages to send")
	}

	modelID := c.modelID
	if config != nil && config.Model != "" {
		modelID = config.Model
	}
	model := c.client.GenerativeModel(modelID)
	configureModel(model, config, availableTools)

	// A leading system message becomes the model's system instruction
	// rather than a conversation turn.
	if messages[0].Role == RoleSystem {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(messages[0].Content)},
		}
		messages = messages[1:]
		if len(messages) == 0 {
			return nil, errors.New("no messages to send after system instruction")
		}
	}

	chat := model.StartChat()
	chat.History = toGeminiContentHistory(messages)

	lastMessage := messages[len(messages)-1]
	resp, err := chat.SendMessage(ctx, toGeminiParts(lastMessage)...)
	if err != nil {
		return nil, fmt.Errorf("gemini API call failed: %w", err)
	}
	return parseGeminiResponse(ctx, model, resp)
}

// configureModel applies dynamic settings using the SDK's setter methods.
func configureModel(model *genai.GenerativeModel, config *GenerationConfig, availableTools []tools.Tool) {
	if config != nil {
		if config.Temperature != nil {
			model.SetTemperature(*config.Temperature)
		}
		if config.TopP != nil {
			model.SetTopP(*config.TopP)
		}
		if config.MaxTokens > 0 {
			model.SetMaxOutputTokens(int32(config.MaxTokens))
		} else {
			model.SetMaxOutputTokens(defaultMaxOutputTokens)
		}
	} else {
		model.SetMaxOutputTokens(defaultMaxOutputTokens)
	}

	if len(availableTools) > 0 {
		model.Tools = toGeminiTools(availableTools)
	} else {
		model.Tools = nil
	}
}

// toGeminiTools converts our internal tool definition to the Gemini SDK's format.
func toGeminiTools(toolsToConvert []tools.Tool) []*genai.Tool {
	declarations := make([]*genai.FunctionDeclaration, 0, len(toolsToConvert))
	for _, t := range toolsToConvert {
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  convertSchema(t.Function.Parameters),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

// convertSchema converts our JSONSchema to the Gemini SDK's schema type.
func convertSchema(s tools.JSONSchema) *genai.Schema {
	genaiSchema := &genai.Schema{
		Description: s.Description,
		Required:    s.Required,
		Enum:        s.Enum,
	}
	switch s.Type {
	case "object":
		genaiSchema.Type = genai.TypeObject
	case "string":
		genaiSchema.Type = genai.TypeString
	case "number":
		genaiSchema.Type = genai.TypeNumber
	case "integer":
		genaiSchema.Type = genai.TypeInteger
	case "boolean":
		genaiSchema.Type = genai.TypeBoolean
	case "array":
		genaiSchema.Type = genai.TypeArray
	}
	if s.Properties != nil {
		genaiSchema.Properties = make(map[string]*genai.Schema)
		for k, v := range s.Properties {
			genaiSchema.Properties[k] = convertSchema(*v)
		}
	}
	if s.Items != nil {
		genaiSchema.Items = convertSchema(*s.Items)
	}
	return genaiSchema
}

// toGeminiContentHistory converts our message history to the Gemini SDK's
// format. The last message is the new prompt, so it is excluded.
func toGeminiContentHistory(messages []Message) []*genai.Content {
	var history []*genai.Content
	for _, msg := range messages[:len(messages)-1] {
		role := "user"
		if msg.Role == RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{
			Role:  role,
			Parts: toGeminiParts(msg),
		})
	}
	return history
}

// toGeminiParts converts one message into SDK parts. Assistant messages that
// requested tool calls are reconstructed as FunctionCall parts; tool-result
// messages become FunctionResponse parts paired by function name.
func toGeminiParts(msg Message) []genai.Part {
	switch {
	case msg.Role == RoleTool:
		return []genai.Part{genai.FunctionResponse{
			Name:     msg.ToolName,
			Response: map[string]any{"result": msg.Content},
		}}
	case msg.Role == RoleAssistant && len(msg.ToolCalls) > 0:
		parts := make([]genai.Part, 0, len(msg.ToolCalls)+1)
		if msg.Content != "" {
			parts = append(parts, genai.Text(msg.Content))
		}
		for _, call := range msg.ToolCalls {
			var args map[string]any
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				log.Warn().Err(err).Str("tool", call.Function.Name).Msg("could not unmarshal tool call args for history")
				args = map[string]any{}
			}
			parts = append(parts, genai.FunctionCall{Name: call.Function.Name, Args: args})
		}
		return parts
	default:
		return []genai.Part{genai.Text(msg.Content)}
	}
}

// parseGeminiResponse converts a Gemini API response into our internal GenerationResult.
func parseGeminiResponse(
	ctx context.Context,
	model *genai.GenerativeModel,
	resp *genai.GenerateContentResponse,
) (*GenerationResult, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("no content returned from Gemini")
	}

	candidate := resp.Candidates[0]
	var contentBuilder strings.Builder
	var toolCalls []*tools.ToolCall

	for _, part := range candidate.Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			contentBuilder.WriteString(string(v))
		case genai.FunctionCall:
			argsJSON, err := json.Marshal(v.Args)
			if err != nil {
				log.Warn().Err(err).Str("tool", v.Name).Msg("could not marshal tool call args")
				continue
			}
			toolCalls = append(toolCalls, &tools.ToolCall{
				ID:   fmt.Sprintf("gemini-toolcall-%s", v.Name),
				Type: tools.ToolTypeFunction,
				Function: tools.ToolCallFunction{
					Name:      v.Name,
					Arguments: string(argsJSON),
				},
			})
		}
	}

	result := &GenerationResult{
		Content:   strings.TrimSpace(contentBuilder.String()),
		ToolCalls: toolCalls,
	}

	if resp.UsageMetadata != nil {
		result.Usage.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		result.Usage.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		result.Usage.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}

	// Some responses omit completion tokens from the metadata; count them
	// manually so profiling stays accurate.
	if result.Usage.CompletionTokens == 0 && result.Content != "" {
		countResp, err := model.CountTokens(ctx, genai.Text(result.Content))
		if err != nil {
			log.Warn().Err(err).Msg("failed to manually count completion tokens")
		} else {
			result.Usage.CompletionTokens = int(countResp.TotalTokens)
			result.Usage.TotalTokens = result.Usage.PromptTokens + result.Usage.CompletionTokens
		}
	}

	return result, nil
}
