package prompt

import (
	"fmt"
	"strings"
)

// defaultTemplate is the built-in system prompt. Variables use
// $name syntax and are substituted at render time.
const defaultTemplate = `You are a professional technical translator. Translate the YAML document content from $source to $target.

Rules:
- Translate only the values. Keys, anchors, tags and structure stay exactly as they are.
- Keep all comments in place and translate their text.
- Preserve indentation, quoting style and line breaks.
- Tokens of the form __PROTECTED_<number>__ must be copied through unchanged.
- Respond with the translated document content only, no explanations and no code fences.`

// Template is a named prompt with $variable placeholders.
type Template struct {
	Name    string
	Content string
}

// Config selects and parameterizes the prompt.
type Config struct {
	SourceLanguage string
	TargetLanguage string
	// Template names which registered template to use; empty means the
	// built-in default.
	Template string
	// Templates are additional templates from configuration.
	Templates []Template
}

// DefaultConfig returns the prompt defaults.
func DefaultConfig() Config {
	return Config{
		SourceLanguage: "English",
		TargetLanguage: "German",
	}
}

// Builder renders system prompts for translation requests.
type Builder struct {
	cfg       Config
	templates map[string]string
}

// New creates a builder with the built-in default template plus any
// configured ones. A configured template named "default" replaces the
// built-in.
func New(cfg Config) (*Builder, error) {
	if cfg.SourceLanguage == "" {
		cfg.SourceLanguage = DefaultConfig().SourceLanguage
	}
	if cfg.TargetLanguage == "" {
		cfg.TargetLanguage = DefaultConfig().TargetLanguage
	}
	b := &Builder{
		cfg:       cfg,
		templates: map[string]string{"default": defaultTemplate},
	}
	for _, t := range cfg.Templates {
		if t.Name == "" || t.Content == "" {
			return nil, fmt.Errorf("prompt template needs a name and content")
		}
		b.templates[t.Name] = t.Content
	}
	if cfg.Template != "" {
		if _, ok := b.templates[cfg.Template]; !ok {
			return nil, fmt.Errorf("prompt template not found: %s", cfg.Template)
		}
	}
	return b, nil
}

// System renders the system prompt for one chunk. Adjacent-chunk
// context, when present, is appended as reference material the model
// must not translate into the output.
func (b *Builder) System(chunkContext string) string {
	name := b.cfg.Template
	if name == "" {
		name = "default"
	}
	out := b.render(b.templates[name], map[string]string{
		"source": b.cfg.SourceLanguage,
		"target": b.cfg.TargetLanguage,
	})
	if chunkContext != "" {
		out += "\n\nSurrounding document for reference only, do not include it in the output:\n" + chunkContext
	}
	return out
}

// Render renders a named template with caller-supplied variables in
// addition to the language pair.
func (b *Builder) Render(name string, vars map[string]string) (string, error) {
	content, ok := b.templates[name]
	if !ok {
		return "", fmt.Errorf("prompt template not found: %s", name)
	}
	merged := map[string]string{
		"source": b.cfg.SourceLanguage,
		"target": b.cfg.TargetLanguage,
	}
	for k, v := range vars {
		merged[k] = v
	}
	return b.render(content, merged), nil
}

// render substitutes $name variables, leaving unknown ones in place.
func (b *Builder) render(content string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "$"+k, v)
	}
	return strings.NewReplacer(pairs...).Replace(content)
}
