package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a live view scenario: a query, seed records, and steps
// with their expected events.
type Scenario struct {
	// Name uniquely identifies this scenario; also the golden file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Query is inline CUE source for one query body.
	Query string `yaml:"query,omitempty"`

	// QueryFile and QueryName select a query from a CUE file instead.
	// QueryFile is relative to the scenario file.
	QueryFile string `yaml:"query_file,omitempty"`
	QueryName string `yaml:"query_name,omitempty"`

	// Seed records are written before the view opens. Loading them emits
	// no events.
	Seed []DocStep `yaml:"seed,omitempty"`

	// Steps run in order; each is synced before the next.
	Steps []Step `yaml:"steps"`

	// Assertions are checked after the last step.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// DocStep is a document literal.
type DocStep struct {
	ID     string         `yaml:"id"`
	Fields map[string]any `yaml:"fields,omitempty"`
}

// Step is one operation. Exactly one operation field is set.
type Step struct {
	Append         *DocStep  `yaml:"append,omitempty"`
	AppendAll      []DocStep `yaml:"append_all,omitempty"`
	RemoveAt       *int      `yaml:"remove_at,omitempty"`
	Update         *DocStep  `yaml:"update,omitempty"`
	ExternalWrite  *DocStep  `yaml:"external_write,omitempty"`
	ExternalDelete *string   `yaml:"external_delete,omitempty"`

	// FailStore makes the backend reject writes during this step.
	FailStore bool `yaml:"fail_store,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes what a step must produce. Nil fields are not checked.
type Expect struct {
	// Events is the exact delegate event list for the step.
	Events []string `yaml:"events,omitempty"`

	// Visible is the ordered list of visible ids after the step.
	Visible []string `yaml:"visible,omitempty"`

	// Error is the expected error code: OUT_OF_RANGE, NOT_FOUND,
	// MALFORMED_RECORD or STORE. Empty means the step must succeed.
	Error string `yaml:"error,omitempty"`
}

// Op names the step's operation.
func (s Step) Op() string {
	switch {
	case s.Append != nil:
		return OpAppend
	case s.AppendAll != nil:
		return OpAppendAll
	case s.RemoveAt != nil:
		return OpRemoveAt
	case s.Update != nil:
		return OpUpdate
	case s.ExternalWrite != nil:
		return OpExternalWrite
	case s.ExternalDelete != nil:
		return OpExternalDelete
	default:
		return ""
	}
}

func (s Step) opCount() int {
	n := 0
	for _, set := range []bool{
		s.Append != nil, s.AppendAll != nil, s.RemoveAt != nil,
		s.Update != nil, s.ExternalWrite != nil, s.ExternalDelete != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

// Step operation names, as written in traces.
const (
	OpAppend         = "append"
	OpAppendAll      = "append_all"
	OpRemoveAt       = "remove_at"
	OpUpdate         = "update"
	OpExternalWrite  = "external_write"
	OpExternalDelete = "external_delete"
)

// Assertion validates the run as a whole.
type Assertion struct {
	// Type specifies the assertion type:
	// - "event_count": Event kind appears exactly Count times across all steps
	// - "event_order": Events appear in this relative order across all steps
	// - "final_visible": Visible ids after the last step
	// - "final_store": Ids in the store after the last step, in id order
	Type string `yaml:"type"`

	// Event is the event kind for event_count: add, remove, update, begin, end.
	Event string `yaml:"event,omitempty"`

	// Count is the expected number of occurrences (event_count).
	Count int `yaml:"count,omitempty"`

	// Events is the expected subsequence (event_order).
	Events []string `yaml:"events,omitempty"`

	// IDs is the expected id list (final_visible, final_store).
	IDs []string `yaml:"ids,omitempty"`
}

// Assertion type constants.
const (
	AssertEventCount   = "event_count"
	AssertEventOrder   = "event_order"
	AssertFinalVisible = "final_visible"
	AssertFinalStore   = "final_store"
)

// LoadScenario reads and parses a scenario YAML file. A relative
// query_file is resolved against the scenario's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.QueryFile != "" && !filepath.IsAbs(scenario.QueryFile) {
		scenario.QueryFile = filepath.Join(filepath.Dir(path), scenario.QueryFile)
		if _, err := os.Stat(scenario.QueryFile); err != nil {
			return nil, fmt.Errorf("invalid scenario: query file not found: %s", scenario.QueryFile)
		}
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML with strict field checking.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch {
	case s.Query != "" && s.QueryFile != "":
		return fmt.Errorf("query and query_file are mutually exclusive")
	case s.Query == "" && s.QueryFile == "":
		return fmt.Errorf("query or query_file is required")
	case s.QueryFile != "" && s.QueryName == "":
		return fmt.Errorf("query_name is required with query_file")
	}

	for i, d := range s.Seed {
		if d.ID == "" {
			return fmt.Errorf("seed[%d]: id is required", i)
		}
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	for i, step := range s.Steps {
		if n := step.opCount(); n != 1 {
			return fmt.Errorf("steps[%d]: exactly one operation is required, found %d", i, n)
		}
		for _, d := range stepDocs(step) {
			if d.ID == "" {
				return fmt.Errorf("steps[%d]: %s: id is required", i, step.Op())
			}
		}
		if step.Expect != nil {
			switch step.Expect.Error {
			case "", ErrorOutOfRange, ErrorNotFound, ErrorMalformed, ErrorStore:
			default:
				return fmt.Errorf("steps[%d].expect: unknown error code %q", i, step.Expect.Error)
			}
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func stepDocs(s Step) []DocStep {
	switch {
	case s.Append != nil:
		return []DocStep{*s.Append}
	case s.Update != nil:
		return []DocStep{*s.Update}
	case s.ExternalWrite != nil:
		return []DocStep{*s.ExternalWrite}
	default:
		return s.AppendAll
	}
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertEventCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for event_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event_count", index)
		}
	case AssertEventOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for event_order", index)
		}
	case AssertFinalVisible, AssertFinalStore:
		if a.IDs == nil {
			return fmt.Errorf("assertions[%d]: ids is required for %s (use [] for none)", index, a.Type)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
