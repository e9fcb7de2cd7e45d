package content

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are a viral short-form video content strategist. You write scripts for
vertical videos that hold attention for their full length.

Rules:
- The title must be under 60 characters.
- Provide 5-8 hashtags.
- The script is a voiceover of 30-40 words; it must open with the hook.
- Respond only with JSON containing title, description, hashtags, script, hook and topic_angle.`

func buildPrompt(req Request) string {
	language := req.Language
	if language == "" {
		language = "en"
	}
	platforms := req.Platforms
	if len(platforms) == 0 {
		platforms = []string{"youtube"}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Create a trending short video about: %s\n", req.Topic)
	if req.VisualStyle != "" {
		fmt.Fprintf(&b, "Visual style: %s\n", req.VisualStyle)
	}
	if req.VoicePersona != "" {
		fmt.Fprintf(&b, "Narrator persona: %s\n", req.VoicePersona)
	}
	fmt.Fprintf(&b, "Language: %s\n", language)
	fmt.Fprintf(&b, "Target platforms: %s\n", strings.Join(platforms, ", "))
	b.WriteString("Pick a fresh angle that is likely to trend right now.")
	return b.String()
}

const scriptSystemPrompt = `You write voiceover scripts for YouTube Shorts.

Hard rules:
- At most 40 words.
- The hook is the first sentence and lands in the first two seconds.
- Spoken English only. No emojis, no generic advice, no motivational filler.
- Do not end with a question.

Return only the words to be spoken. No headings, labels or formatting.`

func buildScriptPrompt(topic, template string) string {
	return fmt.Sprintf("Write a short-form video script about: %s\n\nTemplate: %s\n\nMax 40 words, hook in the first sentence.",
		topic, templateInstructions[template])
}
