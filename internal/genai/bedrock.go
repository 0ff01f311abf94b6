package genai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

type bedrockConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockClient implements Client against the Bedrock Converse API. It is
// used as the secondary backend behind the failover wrapper.
type BedrockClient struct {
	api     bedrockConverseAPI
	modelID string
}

// NewBedrockClient wires a Bedrock-backed generation client.
func NewBedrockClient(api bedrockConverseAPI, modelID string) (*BedrockClient, error) {
	if api == nil {
		return nil, errors.New("genai: bedrock converse client cannot be nil")
	}
	if strings.TrimSpace(modelID) == "" {
		return nil, ErrNotConfigured
	}
	return &BedrockClient{api: api, modelID: modelID}, nil
}

// Generate sends one completion request through Converse.
func (c *BedrockClient) Generate(ctx context.Context, req Request) (Response, error) {
	var system []brtypes.SystemContentBlock
	if strings.TrimSpace(req.System) != "" {
		system = append(system, &brtypes.SystemContentBlockMemberText{Value: req.System})
	}

	messages := []brtypes.Message{
		{
			Role: brtypes.ConversationRoleUser,
			Content: []brtypes.ContentBlock{
				&brtypes.ContentBlockMemberText{Value: req.Prompt},
			},
		},
	}

	inference := &brtypes.InferenceConfiguration{}
	if req.MaxTokens > 0 {
		inference.MaxTokens = aws.Int32(req.MaxTokens)
	}
	if req.Temperature >= 0 {
		inference.Temperature = aws.Float32(req.Temperature)
	}

	out, err := c.api.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId:         aws.String(c.modelID),
		System:          system,
		Messages:        messages,
		InferenceConfig: inference,
	})
	if err != nil {
		return Response{}, classifyBedrockError(err)
	}

	text, truncated, err := bedrockOutputText(out)
	if err != nil {
		return Response{}, err
	}
	return Response{Text: text, Truncated: truncated}, nil
}

func bedrockOutputText(out *bedrockruntime.ConverseOutput) (string, bool, error) {
	msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok || len(msg.Value.Content) == 0 {
		return "", false, ErrEmptyResponse
	}
	var b strings.Builder
	for _, block := range msg.Value.Content {
		if text, ok := block.(*brtypes.ContentBlockMemberText); ok {
			b.WriteString(text.Value)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", false, ErrEmptyResponse
	}
	return text, out.StopReason == brtypes.StopReasonMaxTokens, nil
}

func classifyBedrockError(err error) error {
	var throttled *brtypes.ThrottlingException
	var unavailable *brtypes.ServiceUnavailableException
	if errors.As(err, &throttled) || errors.As(err, &unavailable) {
		return fmt.Errorf("genai: bedrock overloaded: %w", ErrOverloaded)
	}
	if classifyStatusText(err.Error()) {
		return fmt.Errorf("genai: bedrock overloaded: %w", ErrOverloaded)
	}
	return fmt.Errorf("genai: bedrock completion failed: %w", err)
}
