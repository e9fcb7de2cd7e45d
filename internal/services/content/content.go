// Package content generates the script and metadata for a new short through
// an OpenAI-compatible chat completions endpoint.
//
// The model is asked for structured JSON output matching Result's schema.
// Some gateways still wrap the JSON in a markdown fence, so fences are
// stripped before parsing. Anything that does not parse is a hard failure:
// a video is never produced from a half-read script.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

var (
	// ErrNotConfigured means no API key was provided.
	ErrNotConfigured = errors.New("content generator not configured; set CONTENT_API_KEY")
	// ErrRateLimited is returned for HTTP 429 from the gateway.
	ErrRateLimited = errors.New("content generator rate limited")
	// ErrCreditsExhausted is returned for HTTP 402 from the gateway.
	ErrCreditsExhausted = errors.New("content generator credits exhausted")
	// ErrMalformed means the model's answer was not the expected JSON.
	ErrMalformed = errors.New("content generator returned malformed output")
)

// Request describes what to write about.
type Request struct {
	Topic        string
	VisualStyle  string
	VoicePersona string
	Language     string
	Platforms    []string
}

// Result is the structured answer from the model.
type Result struct {
	Title       string   `json:"title" jsonschema_description:"Catchy video title under 60 characters"`
	Description string   `json:"description" jsonschema_description:"Two or three sentence video description"`
	Hashtags    []string `json:"hashtags" jsonschema_description:"Five to eight relevant hashtags"`
	Script      string   `json:"script" jsonschema_description:"Voiceover script of 30 to 40 words"`
	Hook        string   `json:"hook" jsonschema_description:"Opening line that grabs attention in the first second"`
	TopicAngle  string   `json:"topic_angle" jsonschema_description:"The specific angle taken on the topic"`
}

// FullDescription is the description followed by the hashtags, as posted.
func (r *Result) FullDescription() string {
	if len(r.Hashtags) == 0 {
		return r.Description
	}
	return r.Description + "\n\n" + strings.Join(r.Hashtags, " ")
}

// Config holds the generator's connection settings.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxRetries int
	HTTPClient *http.Client
}

// Generator calls the chat completions API.
type Generator struct {
	client     openai.Client
	model      string
	configured bool
}

var resultSchema = generateSchema[Result]()

func generateSchema[T any]() interface{} {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

// New creates a generator. Without an API key every call returns ErrNotConfigured.
func New(cfg Config) *Generator {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 90 * time.Second}
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Generator{
		client:     openai.NewClient(opts...),
		model:      cfg.Model,
		configured: cfg.APIKey != "",
	}
}

// IsConfigured reports whether an API key is set.
func (g *Generator) IsConfigured() bool {
	return g.configured
}

// Generate asks the model for a new script and metadata.
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	if !g.configured {
		return nil, ErrNotConfigured
	}

	log.Printf("🤖 Generating content for topic %q using %s", req.Topic, g.model)

	completion, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(buildPrompt(req)),
		},
		Model: openai.ChatModel(g.model),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        "short_video_content",
					Description: openai.String("Script and metadata for a short-form video"),
					Schema:      resultSchema,
					Strict:      openai.Bool(true),
				},
			},
		},
	})
	if err != nil {
		return nil, apiError("content generation", err)
	}

	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices returned", ErrMalformed)
	}
	raw := completion.Choices[0].Message.Content
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: empty response (finish reason %s)", ErrMalformed, completion.Choices[0].FinishReason)
	}

	return ParseResult(raw)
}

// ParseResult decodes the model's answer, tolerating a surrounding code fence.
func ParseResult(raw string) (*Result, error) {
	var res Result
	if err := json.Unmarshal([]byte(stripCodeFences(raw)), &res); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	res.Title = strings.TrimSpace(res.Title)
	res.Script = strings.TrimSpace(res.Script)
	if res.Title == "" || res.Script == "" {
		return nil, fmt.Errorf("%w: missing title or script", ErrMalformed)
	}
	res.Hashtags = normalizeHashtags(res.Hashtags)
	return &res, nil
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func normalizeHashtags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if !strings.HasPrefix(t, "#") {
			t = "#" + t
		}
		out = append(out, t)
	}
	return out
}
