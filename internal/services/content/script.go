package content

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strings"

	"github.com/openai/openai-go/v3"
)

// Script templates accepted by GenerateScript.
const (
	TemplateHookFact   = "hook_fact"
	TemplatePOVReveal  = "pov_reveal"
	TemplateComparison = "comparison"
	TemplateCountdown  = "countdown"
)

const hookFallbackWords = 8

var templateInstructions = map[string]string{
	TemplateHookFact:   "Use the Hook + Fact structure: start with a question hook, give a surprising answer, end with the implication.",
	TemplatePOVReveal:  "Use the POV Reveal structure: start with 'POV:', reveal something surprising, end with a lasting implication.",
	TemplateComparison: "Use the This vs That structure: set up a comparison, list the key differences, declare a clear winner.",
	TemplateCountdown:  "Use the Top 3 Facts structure: introduce the category, list three facts, end with a call to action like 'Follow for more'.",
}

var firstSentence = regexp.MustCompile(`^[^.!?]+[.!?]`)

// ScriptRequest asks for a bare voiceover script.
type ScriptRequest struct {
	Topic    string
	Template string // one of the Template constants; unknown values use hook_fact
}

// Script is a plain-text voiceover with its derived hook.
type Script struct {
	Content   string `json:"content"`
	WordCount int    `json:"wordCount"`
	HookText  string `json:"hookText"`
	Template  string `json:"template"`
}

// GenerateScript asks the model for a voiceover of at most 40 words.
func (g *Generator) GenerateScript(ctx context.Context, req ScriptRequest) (*Script, error) {
	if !g.configured {
		return nil, ErrNotConfigured
	}
	template := req.Template
	if _, ok := templateInstructions[template]; !ok {
		template = TemplateHookFact
	}

	log.Printf("🤖 Generating %s script for topic %q using %s", template, req.Topic, g.model)

	completion, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(scriptSystemPrompt),
			openai.UserMessage(buildScriptPrompt(req.Topic, template)),
		},
		Model: openai.ChatModel(g.model),
	})
	if err != nil {
		return nil, apiError("script generation", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices returned", ErrMalformed)
	}

	s := ParseScript(completion.Choices[0].Message.Content)
	if s.Content == "" {
		return nil, fmt.Errorf("%w: empty script", ErrMalformed)
	}
	s.Template = template
	return s, nil
}

// ParseScript trims the model's text and derives the word count and hook.
// The hook is the first sentence, or the first eight words when there is no
// sentence terminator.
func ParseScript(raw string) *Script {
	content := strings.TrimSpace(raw)
	words := strings.Fields(content)

	hook := strings.TrimSpace(firstSentence.FindString(content))
	if hook == "" {
		n := len(words)
		if n > hookFallbackWords {
			n = hookFallbackWords
		}
		hook = strings.Join(words[:n], " ")
	}
	return &Script{Content: content, WordCount: len(words), HookText: hook}
}

// apiError maps gateway status codes onto the package errors.
func apiError(what string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests:
			return ErrRateLimited
		case http.StatusPaymentRequired:
			return ErrCreditsExhausted
		}
	}
	return fmt.Errorf("%s request failed: %w", what, err)
}
