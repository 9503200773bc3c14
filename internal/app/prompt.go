package app

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/prompts"

	"docqa/internal/vectordb"
)

const (
	PromptVarContext = "context"
	PromptVarInput   = "input"

	contextSeparator = "\n\n"
)

// PromptTemplate renders the retrieved context and the question into the
// single prompt sent to the generator.
type PromptTemplate struct {
	tmpl prompts.PromptTemplate
}

func NewPromptTemplate(template string) (*PromptTemplate, error) {
	vars := []string{PromptVarContext, PromptVarInput}
	if err := prompts.CheckValidTemplate(template, prompts.TemplateFormatFString, vars); err != nil {
		return nil, fmt.Errorf("%w: prompt template: %w", ErrInvalidInput, err)
	}
	for _, v := range vars {
		if !strings.Contains(template, "{"+v+"}") {
			return nil, fmt.Errorf("%w: prompt template must reference {%s}", ErrInvalidInput, v)
		}
	}
	return &PromptTemplate{tmpl: prompts.PromptTemplate{
		Template:       template,
		InputVariables: vars,
		TemplateFormat: prompts.TemplateFormatFString,
	}}, nil
}

// Render joins the match texts in rank order and fills the template.
func (p *PromptTemplate) Render(question string, matches []vectordb.Match) (string, error) {
	texts := make([]string, 0, len(matches))
	for _, m := range matches {
		texts = append(texts, m.Text)
	}
	out, err := p.tmpl.Format(map[string]any{
		PromptVarContext: strings.Join(texts, contextSeparator),
		PromptVarInput:   question,
	})
	if err != nil {
		return "", fmt.Errorf("render prompt failed: %w", err)
	}
	return out, nil
}
