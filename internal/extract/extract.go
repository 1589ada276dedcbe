package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"episode-publisher/internal/models"
)

// PlaceholderDescription is used when the model reply carries no description.
const PlaceholderDescription = "No description."

const maxTags = 5

const minimalPrompt = "You're a podcast producer. Return a concise title for the episode transcript on a single line and nothing else."

const richPrompt = `You're a podcast producer. Read the episode transcript and reply with exactly three lines:
1. a concise title
2. a one-sentence description of the episode
3. "Tags:" followed by up to five short comma-separated topic tags
Do not add numbering, labels other than "Tags:", or any other text.`

var (
	// ErrEmptyReply is returned when the model produced no text.
	ErrEmptyReply = errors.New("empty model reply")
	// ErrMalformedReply is returned when no title can be read from the reply.
	ErrMalformedReply = errors.New("malformed model reply")
)

// Generator is a remote text-generation backend taking a system instruction
// and a user message and returning one completion.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// Extractor derives episode metadata from a transcript. Replies are not
// deterministic; two calls on the same transcript may give different titles.
type Extractor struct {
	gen  Generator
	rich bool
}

// New returns an Extractor. With rich unset only the title is requested.
func New(gen Generator, rich bool) *Extractor {
	return &Extractor{gen: gen, rich: rich}
}

// Prompt returns the system instruction sent with each transcript.
func (e *Extractor) Prompt() string {
	if e.rich {
		return richPrompt
	}
	return minimalPrompt
}

// Extract asks the model for metadata and parses its reply.
func (e *Extractor) Extract(ctx context.Context, transcript string) (models.Metadata, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return models.Metadata{}, errors.New("extract: empty transcript")
	}

	reply, err := e.gen.Generate(ctx, e.Prompt(), transcript)
	if err != nil {
		return models.Metadata{}, fmt.Errorf("extract: %w", err)
	}
	return ParseReply(reply, e.rich)
}

// ParseReply reads a line-oriented model reply. The first non-empty line is
// the title. In rich mode a line starting with "Tags:" or "Keywords:" holds
// comma-separated tags and the remaining lines form the description, which
// falls back to PlaceholderDescription when absent.
func ParseReply(reply string, rich bool) (models.Metadata, error) {
	var lines []string
	for _, line := range strings.Split(strings.ReplaceAll(reply, "\r\n", "\n"), "\n") {
		if line = strings.TrimSpace(line); line != "" && !isFence(line) {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return models.Metadata{}, ErrEmptyReply
	}

	title := cleanLine(stripLabel(lines[0], "title"))
	if title == "" {
		return models.Metadata{}, fmt.Errorf("%w: no title in %q", ErrMalformedReply, lines[0])
	}

	md := models.Metadata{Title: title}
	if !rich {
		return md, nil
	}

	var description []string
	for _, line := range lines[1:] {
		if rest, ok := cutLabel(line, "tags", "keywords"); ok {
			md.Tags = append(md.Tags, splitTags(rest)...)
			continue
		}
		if part := cleanLine(stripLabel(line, "description", "summary")); part != "" {
			description = append(description, part)
		}
	}

	md.Description = strings.Join(description, " ")
	if md.Description == "" {
		md.Description = PlaceholderDescription
	}
	md.Tags = dedupeTags(md.Tags)
	return md, nil
}

func isFence(line string) bool {
	return strings.HasPrefix(line, "```")
}

// cutLabel strips a leading "label:" (case-insensitive, optional markdown
// emphasis) and reports whether one of labels matched.
func cutLabel(line string, labels ...string) (string, bool) {
	trimmed := strings.TrimLeft(line, "*_#-0123456789. ")
	lower := strings.ToLower(trimmed)
	for _, label := range labels {
		if !strings.HasPrefix(lower, label) {
			continue
		}
		rest := strings.TrimLeft(trimmed[len(label):], "*_ ")
		if strings.HasPrefix(rest, ":") {
			return strings.TrimSpace(strings.TrimLeft(rest[1:], "*_ ")), true
		}
	}
	return line, false
}

func stripLabel(line string, labels ...string) string {
	rest, _ := cutLabel(line, labels...)
	return rest
}

func cleanLine(line string) string {
	line = stripNumbering(strings.TrimSpace(line))
	line = strings.TrimLeft(line, "#")
	line = strings.Trim(line, "*_ ")
	line = strings.TrimSpace(line)
	if len(line) >= 2 {
		first, last := line[0], line[len(line)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			line = strings.TrimSpace(line[1 : len(line)-1])
		}
	}
	if strings.HasPrefix(line, "“") && strings.HasSuffix(line, "”") {
		line = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(line, "“"), "”"))
	}
	return line
}

// stripNumbering removes a list marker such as "1. " or "2) ".
func stripNumbering(line string) string {
	i := 0
	for i < len(line) && i < 2 && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i == 0 || i+1 >= len(line) {
		return line
	}
	if (line[i] == '.' || line[i] == ')') && line[i+1] == ' ' {
		return strings.TrimSpace(line[i+2:])
	}
	return line
}

func splitTags(value string) []string {
	var tags []string
	for _, raw := range strings.Split(value, ",") {
		tag := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(raw), "#"))
		tag = strings.Trim(tag, "\"'.")
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

func dedupeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	result := make([]string, 0, len(tags))
	for _, tag := range tags {
		key := strings.ToLower(tag)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, tag)
		if len(result) == maxTags {
			break
		}
	}
	return result
}
