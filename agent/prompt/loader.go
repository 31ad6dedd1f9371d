package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/decision.txt
	decisionRaw string
)

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Decision string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Decision: strings.TrimSpace(decisionRaw),
	}
}
