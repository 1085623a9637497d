// ABOUTME: TOML scenario files describing ordered harness steps and expectations
// ABOUTME: Decoded with environment variable expansion, validated before a run starts

package scenario

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/2389/coven-harness/internal/activity"
)

// Scenario is an ordered list of steps driven against one agent.
type Scenario struct {
	Name  string `toml:"name"`
	Steps []Step `toml:"steps"`
}

// Step sends one activity and checks the collected replies.
type Step struct {
	Name string `toml:"name"`
	// Mode is one of normal, expectReplies, stream. Empty means normal.
	Mode string `toml:"mode"`
	Text string `toml:"text"`
	// ConversationID pins the conversation; empty lets the harness
	// assign one.
	ConversationID string        `toml:"conversation_id"`
	Expect         []Expectation `toml:"expect"`
}

// Expectation is one check-engine assertion over a step's replies.
type Expectation struct {
	// Quantifier is one of for_all, for_any, for_none, for_one,
	// for_exactly. Empty means for_all.
	Quantifier string `toml:"quantifier"`
	// Exactly is the match count for for_exactly.
	Exactly int `toml:"exactly"`
	// Where narrows the reply set by field equality or ~substring
	// before the assertion runs.
	Where map[string]string `toml:"where"`
	// That holds the asserted criteria, field to expected value, with
	// the same ~substring convention.
	That map[string]string `toml:"that"`
	// Count asserts the narrowed set size instead of criteria.
	Count *int `toml:"count"`
}

var validModes = map[string]bool{
	"":                                     true,
	string(activity.DeliveryCallback):      true,
	string(activity.DeliveryExpectReplies): true,
	string(activity.DeliveryStream):        true,
}

var validQuantifiers = map[string]bool{
	"": true, "for_all": true, "for_any": true, "for_none": true,
	"for_one": true, "for_exactly": true,
}

// Load reads a scenario from the given path, expanding ${VAR}
// environment references before decoding.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var s Scenario
	if _, err := toml.Decode(expanded, &s); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("validating scenario: %w", err)
	}

	return &s, nil
}

// expandEnvVars replaces ${VAR} with environment variable values.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(varName)
	})
}

// Validate checks that the scenario is runnable.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("at least one step is required")
	}

	for i, step := range s.Steps {
		if step.Text == "" {
			return fmt.Errorf("steps[%d]: text is required", i)
		}
		if !validModes[step.Mode] {
			return fmt.Errorf("steps[%d]: unknown mode %q", i, step.Mode)
		}
		for j, exp := range step.Expect {
			if !validQuantifiers[exp.Quantifier] {
				return fmt.Errorf("steps[%d].expect[%d]: unknown quantifier %q", i, j, exp.Quantifier)
			}
			if exp.Quantifier == "for_exactly" && exp.Exactly <= 0 {
				return fmt.Errorf("steps[%d].expect[%d]: for_exactly requires a positive exactly value", i, j)
			}
			if len(exp.That) == 0 && exp.Count == nil {
				return fmt.Errorf("steps[%d].expect[%d]: either that or count is required", i, j)
			}
		}
	}
	return nil
}

// Activity builds the request activity for a step.
func (st Step) Activity() activity.Activity {
	a := activity.New(st.ConversationID, st.Text)
	if st.Mode != "" {
		a.DeliveryMode = activity.DeliveryMode(st.Mode)
	}
	return a
}
