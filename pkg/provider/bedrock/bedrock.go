// Package bedrock adapts the completion contract onto the AWS Bedrock
// runtime, which fronts several model families behind one invoke API. The
// family is chosen by the model id prefix and each family carries its own
// native request schema and chunk shape.
package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/veylan/synapnode/pkg/provider"
)

const Name = "Bedrock"

const (
	familyCohere    = "cohere"
	familyMeta      = "meta"
	familyAnthropic = "anthropic"
	familyMistral   = "mistral"
	familyAmazon    = "amazon"
	familyAI21      = "ai21"
)

// metaMaxGenLen is the hard cap Bedrock enforces for meta models.
const metaMaxGenLen = 2048

type Adapter struct {
	client *bedrockruntime.Client
}

func New(ctx context.Context, region, accessKey, secretKey string) (*Adapter, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("bedrock config: %w", err)
	}
	return &Adapter{client: bedrockruntime.NewFromConfig(cfg)}, nil
}

func (a *Adapter) Name() string { return Name }

// StreamComplete implements provider.Adapter. The ai21 family has no
// streaming invoke; its single response is surfaced as a stream of length 1.
func (a *Adapter) StreamComplete(ctx context.Context, req provider.CompletionRequest) (provider.Stream, error) {
	family := modelFamily(req.Model)

	body, err := buildNativeRequest(ctx, family, req)
	if err != nil {
		return nil, provider.NewError(Name, req.Model, err)
	}

	if family == familyAI21 {
		out, err := a.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     aws.String(req.Model),
			Body:        body,
			ContentType: aws.String("application/json"),
			Accept:      aws.String("application/json"),
		})
		if err != nil {
			return nil, provider.NewError(Name, req.Model, err)
		}
		text, err := extractToken(family, out.Body)
		if err != nil {
			return nil, provider.NewError(Name, req.Model, err)
		}
		return &singleStream{text: text}, nil
	}

	out, err := a.client.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
		ModelId:     aws.String(req.Model),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return nil, provider.NewError(Name, req.Model, err)
	}

	inner := out.GetStream()
	return &invokeStream{
		model:  req.Model,
		family: family,
		inner:  inner,
		events: inner.Events(),
	}, nil
}

func modelFamily(model string) string {
	if i := strings.IndexByte(model, '.'); i > 0 {
		return model[:i]
	}
	return model
}

func firstContent(msgs []provider.Message) string {
	if len(msgs) == 0 {
		return ""
	}
	return msgs[0].Content
}

// buildNativeRequest renders the family-specific request body. The anthropic
// family shares the system-extraction and base64-image behavior of the
// standalone Anthropic adapter.
func buildNativeRequest(ctx context.Context, family string, req provider.CompletionRequest) ([]byte, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = metaMaxGenLen
	}

	switch family {
	case familyCohere:
		return json.Marshal(map[string]any{
			"message":     firstContent(req.Messages),
			"temperature": req.Temperature,
			"max_tokens":  maxTokens,
			"p":           req.TopP,
			"seed":        req.Seed,
		})
	case familyMeta:
		genLen := maxTokens
		if genLen > metaMaxGenLen {
			genLen = metaMaxGenLen
		}
		return json.Marshal(map[string]any{
			"prompt":      firstContent(req.Messages),
			"temperature": req.Temperature,
			"max_gen_len": genLen,
			"top_p":       req.TopP,
		})
	case familyAnthropic:
		system, rest := provider.SplitSystem(req.Messages)
		blocks, err := anthropicMessages(ctx, rest)
		if err != nil {
			return nil, err
		}
		native := map[string]any{
			"anthropic_version": "bedrock-2023-05-31",
			"messages":          blocks,
			"temperature":       req.Temperature,
			"max_tokens":        maxTokens,
			"top_p":             req.TopP,
		}
		if system != "" {
			native["system"] = system
		}
		return json.Marshal(native)
	case familyMistral:
		return json.Marshal(map[string]any{
			"prompt":      firstContent(req.Messages),
			"temperature": req.Temperature,
			"max_tokens":  maxTokens,
		})
	case familyAmazon:
		return json.Marshal(map[string]any{
			"inputText": firstContent(req.Messages),
			"textGenerationConfig": map[string]any{
				"maxTokenCount": maxTokens,
				"temperature":   req.Temperature,
				"topP":          req.TopP,
			},
		})
	case familyAI21:
		return json.Marshal(map[string]any{
			"prompt":      firstContent(req.Messages),
			"maxTokens":   maxTokens,
			"temperature": req.Temperature,
			"topP":        req.TopP,
		})
	default:
		return nil, fmt.Errorf("unsupported model family %q", family)
	}
}

func anthropicMessages(ctx context.Context, msgs []provider.Message) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(msgs))
	for _, m := range msgs {
		content := []map[string]any{}
		if m.Image != "" {
			data, err := provider.FetchImageBase64(ctx, m.Image)
			if err != nil {
				return nil, err
			}
			content = append(content, map[string]any{
				"type": "image",
				"source": map[string]any{
					"type":       "base64",
					"media_type": "image/jpeg",
					"data":       data,
				},
			})
		}
		if m.Content != "" {
			content = append(content, map[string]any{
				"type": "text",
				"text": m.Content,
			})
		}
		if len(content) == 0 {
			continue
		}
		out = append(out, map[string]any{
			"role":    string(m.Role),
			"content": content,
		})
	}
	return out, nil
}

// extractToken pulls the text delta out of one family-specific chunk. For
// ai21 the argument is the whole (non-streamed) response body.
func extractToken(family string, raw []byte) (string, error) {
	switch family {
	case familyCohere:
		var chunk struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(raw, &chunk); err != nil {
			return "", fmt.Errorf("decode cohere chunk: %w", err)
		}
		return chunk.Text, nil
	case familyMeta:
		var chunk struct {
			Generation string `json:"generation"`
		}
		if err := json.Unmarshal(raw, &chunk); err != nil {
			return "", fmt.Errorf("decode meta chunk: %w", err)
		}
		return chunk.Generation, nil
	case familyAnthropic:
		var chunk struct {
			Type  string `json:"type"`
			Delta struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"delta"`
		}
		if err := json.Unmarshal(raw, &chunk); err != nil {
			return "", fmt.Errorf("decode anthropic chunk: %w", err)
		}
		if chunk.Type == "content_block_delta" && chunk.Delta.Type == "text_delta" {
			return chunk.Delta.Text, nil
		}
		return "", nil
	case familyMistral:
		var chunk struct {
			Outputs []struct {
				Text string `json:"text"`
			} `json:"outputs"`
		}
		if err := json.Unmarshal(raw, &chunk); err != nil {
			return "", fmt.Errorf("decode mistral chunk: %w", err)
		}
		if len(chunk.Outputs) == 0 {
			return "", nil
		}
		return chunk.Outputs[0].Text, nil
	case familyAmazon:
		var chunk struct {
			OutputText string `json:"outputText"`
		}
		if err := json.Unmarshal(raw, &chunk); err != nil {
			return "", fmt.Errorf("decode amazon chunk: %w", err)
		}
		return chunk.OutputText, nil
	case familyAI21:
		var body struct {
			Completions []struct {
				Data struct {
					Text string `json:"text"`
				} `json:"data"`
			} `json:"completions"`
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return "", fmt.Errorf("decode ai21 response: %w", err)
		}
		if len(body.Completions) == 0 {
			return "", nil
		}
		return body.Completions[0].Data.Text, nil
	default:
		return "", fmt.Errorf("unsupported model family %q", family)
	}
}

type invokeStream struct {
	model  string
	family string
	inner  *bedrockruntime.InvokeModelWithResponseStreamEventStream
	events <-chan types.ResponseStream
}

func (s *invokeStream) Next() (provider.Chunk, error) {
	for {
		event, ok := <-s.events
		if !ok {
			if err := s.inner.Err(); err != nil {
				return provider.Chunk{}, provider.NewError(Name, s.model, err)
			}
			return provider.Chunk{}, io.EOF
		}
		chunk, ok := event.(*types.ResponseStreamMemberChunk)
		if !ok {
			continue
		}
		token, err := extractToken(s.family, chunk.Value.Bytes)
		if err != nil {
			return provider.Chunk{}, provider.NewError(Name, s.model, err)
		}
		return provider.Chunk{Delta: token}, nil
	}
}

func (s *invokeStream) Close() error { return s.inner.Close() }

// singleStream surfaces a non-streaming response as a stream of length 1.
type singleStream struct {
	text      string
	delivered bool
}

func (s *singleStream) Next() (provider.Chunk, error) {
	if s.delivered {
		return provider.Chunk{}, io.EOF
	}
	s.delivered = true
	return provider.Chunk{Delta: s.text}, nil
}

func (s *singleStream) Close() error {
	s.delivered = true
	return nil
}
