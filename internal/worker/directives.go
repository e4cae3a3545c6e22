package worker

import (
	"regexp"
	"strings"
)

// Directive kinds parsed from a completion.
const (
	directiveInvoke   = "invoke"
	directiveDelegate = "delegate"
)

// Directive is one action the completion asked for.
type Directive struct {
	// Kind is invoke or delegate.
	Kind string
	// Name is the capability name (invoke only).
	Name string
	// Args is the raw argument payload (invoke only).
	Args string
	// Task is the delegated task description (delegate only).
	Task string
	// Role is the delegated role (delegate only).
	Role string
}

// Parsed is the structured form of one completion.
type Parsed struct {
	// Final is the final result text, set when the completion ended the
	// loop with a FINAL line.
	Final string
	// Rationale accompanies a final result.
	Rationale string
	// Directives are the requested actions, in order of appearance.
	Directives []Directive
}

// Done reports whether the completion ended the loop.
func (p *Parsed) Done() bool {
	return p.Final != ""
}

var (
	invokeRe   = regexp.MustCompile(`\[INVOKE:\s*([a-z0-9_]+)\s*(.*?)\]`)
	delegateRe = regexp.MustCompile(`\[DELEGATE:\s*"([^"]+)"(?:\s+--role="?([A-Za-z]+)"?)?\s*\]`)
)

// ParseCompletion extracts directives and any final answer from a
// completion. A completion with neither directives nor a FINAL line is
// treated as a final answer in its entirety, so a model that just
// answers still terminates the loop.
func ParseCompletion(text string) *Parsed {
	p := &Parsed{}

	var finalLines, rationaleLines []string
	section := ""

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(trimmed, "FINAL:"):
			section = "final"
			rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "FINAL:"))
			if rest != "" {
				finalLines = append(finalLines, rest)
			}
			continue
		case strings.HasPrefix(trimmed, "RATIONALE:"):
			section = "rationale"
			rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "RATIONALE:"))
			if rest != "" {
				rationaleLines = append(rationaleLines, rest)
			}
			continue
		}

		if m := invokeRe.FindStringSubmatch(trimmed); m != nil {
			p.Directives = append(p.Directives, Directive{
				Kind: directiveInvoke,
				Name: m[1],
				Args: strings.TrimSpace(m[2]),
			})
			section = ""
			continue
		}
		if m := delegateRe.FindStringSubmatch(trimmed); m != nil {
			role := m[2]
			if role == "" {
				role = "executor"
			}
			p.Directives = append(p.Directives, Directive{
				Kind: directiveDelegate,
				Task: m[1],
				Role: strings.ToLower(role),
			})
			section = ""
			continue
		}

		switch section {
		case "final":
			finalLines = append(finalLines, line)
		case "rationale":
			rationaleLines = append(rationaleLines, line)
		}
	}

	p.Final = strings.TrimSpace(strings.Join(finalLines, "\n"))
	p.Rationale = strings.TrimSpace(strings.Join(rationaleLines, "\n"))

	if p.Final == "" && len(p.Directives) == 0 {
		p.Final = strings.TrimSpace(text)
	}

	return p
}
