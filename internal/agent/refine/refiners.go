package refine

import (
	"context"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/osinthunter/internal/agent/core"
)

// maxPromptEvidence bounds how many findings are quoted in a prompt.
const maxPromptEvidence = 40

const planSystemPrompt = `You plan the next iteration of an OSINT investigation.
Answer with a JSON object {"steps":[{"title":"...","collector":"...","rationale":"..."}]}.
Use only collector names from the provided list. Keep the plan short and ordered by value.`

const validationSystemPrompt = `You review the findings of an OSINT investigation whose goal is a token shaped like flag{...}.
Answer with a JSON object {"flags":["..."],"stop":false,"note":"..."}.
Only list flags that literally appear in the findings or can be derived from them with certainty.
Set stop to true only when more collection cannot help.`

// Planner is a core.PlanRefiner backed by a chat model.
type Planner struct {
	client     *Client
	collectors []string
}

// NewPlanner returns a plan refiner restricted to the given collector names.
func NewPlanner(client *Client, collectors []string) *Planner {
	return &Planner{client: client, collectors: append([]string(nil), collectors...)}
}

// RefinePlan implements core.PlanRefiner. Steps naming unknown collectors are dropped.
func (p *Planner) RefinePlan(ctx context.Context, state core.OrchestrationState, heuristic []core.PlanStep) ([]core.PlanStep, error) {
	var b strings.Builder
	writeProblem(&b, state)
	fmt.Fprintf(&b, "\nAvailable collectors: %s\n", strings.Join(p.collectors, ", "))
	b.WriteString("\nDefault plan:\n")
	for i, st := range heuristic {
		fmt.Fprintf(&b, "%d. %s [%s] %s\n", i+1, st.Title, st.Collector, st.Rationale)
	}

	var out struct {
		Steps []core.PlanStep `json:"steps"`
	}
	if err := p.client.completeJSON(ctx, planSystemPrompt, b.String(), &out); err != nil {
		return nil, fmt.Errorf("refine plan: %w", err)
	}

	known := make(map[string]struct{}, len(p.collectors))
	for _, name := range p.collectors {
		known[name] = struct{}{}
	}
	steps := out.Steps[:0]
	for _, st := range out.Steps {
		if st.Collector != "" {
			if _, ok := known[st.Collector]; !ok {
				continue
			}
		}
		steps = append(steps, st)
	}
	return steps, nil
}

// Validator is a core.ValidationRefiner backed by a chat model.
type Validator struct {
	client *Client
}

// NewValidator returns a validation refiner.
func NewValidator(client *Client) *Validator {
	return &Validator{client: client}
}

// RefineValidation implements core.ValidationRefiner. Proposed flags that do
// not match the flag pattern are discarded.
func (v *Validator) RefineValidation(ctx context.Context, state core.OrchestrationState) (core.Verdict, error) {
	var b strings.Builder
	writeProblem(&b, state)
	if len(state.Flags) > 0 {
		fmt.Fprintf(&b, "\nFlags already found: %s\n", strings.Join(state.Flags, ", "))
	}

	var out struct {
		Flags []string `json:"flags"`
		Stop  bool     `json:"stop"`
		Note  string   `json:"note"`
	}
	if err := v.client.completeJSON(ctx, validationSystemPrompt, b.String(), &out); err != nil {
		return core.Verdict{}, fmt.Errorf("refine validation: %w", err)
	}
	verdict := core.Verdict{Stop: out.Stop, Note: out.Note}
	for _, f := range out.Flags {
		if m := core.FlagPattern.FindString(f); m != "" {
			verdict.Flags = append(verdict.Flags, m)
		}
	}
	return verdict, nil
}

func writeProblem(b *strings.Builder, state core.OrchestrationState) {
	fmt.Fprintf(b, "Iteration: %d\nProblem:\n%s\n", state.Iteration, state.Input.Text)
	if len(state.Input.URLs) > 0 {
		fmt.Fprintf(b, "URLs: %s\n", strings.Join(state.Input.URLs, ", "))
	}
	if len(state.Input.ImagePaths) > 0 {
		fmt.Fprintf(b, "Images: %s\n", strings.Join(state.Input.ImagePaths, ", "))
	}
	evidence := state.Evidence
	if len(evidence) > maxPromptEvidence {
		evidence = evidence[len(evidence)-maxPromptEvidence:]
	}
	if len(evidence) == 0 {
		b.WriteString("\nFindings: none yet\n")
		return
	}
	b.WriteString("\nFindings:\n")
	for _, ev := range evidence {
		fmt.Fprintf(b, "- (%.2f) %s: %s\n", ev.Confidence, ev.Source, ev.Fact)
	}
}
