package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// LLM judges a step result against free-form acceptance criteria using a
// chat model. Register it generically under "llm", or per tool for tools
// whose results need semantic judgement.
type LLM struct {
	model model.BaseChatModel
}

// NewLLM creates an LLM verifier backed by the given chat model.
func NewLLM(m model.BaseChatModel) *LLM {
	return &LLM{model: m}
}

func (v *LLM) Name() string { return "llm" }

// judgement is the JSON document the model is asked to produce.
type judgement struct {
	Pass     bool     `json:"pass"`
	Issues   []string `json:"issues"`
	Feedback string   `json:"feedback"`
}

func (v *LLM) Verify(ctx context.Context, result map[string]any, expected *Expectation) (*Result, error) {
	if expected == nil || len(expected.Criteria) == 0 {
		return nil, fmt.Errorf("llm verifier: no criteria")
	}

	prompt, err := buildJudgePrompt(result, expected.Criteria)
	if err != nil {
		return nil, fmt.Errorf("llm verifier: build prompt: %w", err)
	}

	msg, err := v.model.Generate(ctx, []*schema.Message{
		{Role: schema.User, Content: prompt},
	})
	if err != nil {
		return nil, fmt.Errorf("llm verifier: generate: %w", err)
	}

	return parseJudgement(msg.Content), nil
}

// maxResultLen caps how much of a result document is put in the prompt.
const maxResultLen = 4000

func buildJudgePrompt(result map[string]any, criteria []string) (string, error) {
	doc, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", err
	}
	body := string(doc)
	if len(body) > maxResultLen {
		body = body[:maxResultLen] + "\n... (truncated)"
	}

	var sb strings.Builder
	sb.WriteString("You are a verification agent. Evaluate whether the following step result meets the acceptance criteria.\n\n")
	sb.WriteString("## Acceptance Criteria\n\n")
	for i, c := range criteria {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, c)
	}
	sb.WriteString("\n## Step Result\n\n")
	sb.WriteString(body)
	sb.WriteString("\n\n## Instructions\n\n")
	sb.WriteString("Respond with a JSON object:\n```json\n")
	sb.WriteString(`{"pass": true/false, "issues": ["issue1", ...], "feedback": "brief feedback"}`)
	sb.WriteString("\n```\nOnly output the JSON, no other text.")
	return sb.String(), nil
}

// parseJudgement extracts the model's JSON verdict, stripping markdown code
// fences. Unparseable responses count as a pass so a flaky judge can never
// block execution.
func parseJudgement(content string) *Result {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```") {
		var inBlock bool
		var body []string
		for _, line := range strings.Split(content, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "```") {
				inBlock = !inBlock
				continue
			}
			if inBlock {
				body = append(body, line)
			}
		}
		content = strings.Join(body, "\n")
	}

	var j judgement
	if err := json.Unmarshal([]byte(content), &j); err != nil {
		slog.Warn("llm verifier: unparseable judgement, treating as pass", "error", err)
		return &Result{Passed: true}
	}

	if j.Pass {
		return &Result{Passed: true}
	}
	errs := j.Issues
	if len(errs) == 0 && j.Feedback != "" {
		errs = []string{j.Feedback}
	}
	return &Result{Errors: errs}
}
