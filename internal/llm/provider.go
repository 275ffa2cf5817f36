package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderBedrock   = "bedrock"
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
	ProviderStub      = "stub"
)

// Settings carries the credentials every provider constructor may need.
type Settings struct {
	OllamaBaseURL   string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	AnthropicAPIKey string
	GeminiAPIKey    string
	GeminiModel     string
	AWSRegion       string
	AWSEndpoint     string
	StubReply       string
}

// NewProvider builds the named provider client.
func NewProvider(ctx context.Context, name string, s Settings) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case ProviderOllama, "":
		return NewOllamaClient(s.OllamaBaseURL), nil
	case ProviderOpenAI:
		if strings.TrimSpace(s.OpenAIAPIKey) == "" && strings.TrimSpace(s.OpenAIBaseURL) == "" {
			return nil, fmt.Errorf("llm: openai provider requires an API key")
		}
		return NewOpenAIClient(s.OpenAIAPIKey, s.OpenAIBaseURL), nil
	case ProviderAnthropic:
		return NewAnthropicClient(s.AnthropicAPIKey)
	case ProviderGemini:
		return NewGeminiClient(ctx, s.GeminiAPIKey, s.GeminiModel)
	case ProviderBedrock:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(s.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("llm: load aws config: %w", err)
		}
		api := bedrockruntime.NewFromConfig(awsCfg, func(o *bedrockruntime.Options) {
			if s.AWSEndpoint != "" {
				o.BaseEndpoint = aws.String(s.AWSEndpoint)
			}
		})
		return NewBedrockClient(api), nil
	case ProviderStub:
		return StaticClient{Text: s.StubReply}, nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", name)
	}
}

// StaticClient always answers with the same text. Useful for local runs
// without a model and for tests.
type StaticClient struct {
	Text string
	Err  error
}

func (c StaticClient) Complete(ctx context.Context, _ Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	if c.Err != nil {
		return Response{}, c.Err
	}
	return Response{Text: c.Text}, nil
}
