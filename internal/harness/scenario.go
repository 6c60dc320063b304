package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario is one end-to-end run against a sub-table.
type Scenario struct {
	// Name identifies the scenario and its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Schema is the CUE table directory. A relative path is resolved
	// against the scenario file by LoadScenario.
	Schema string `yaml:"schema"`

	// Table and Record select the sub-table instance.
	Table  string `yaml:"table"`
	Record string `yaml:"record"`

	// Records are related records stored before the steps run.
	Records []RecordSeed `yaml:"records,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// RecordSeed is a related record for relation and lookup fields.
type RecordSeed struct {
	Table  string         `yaml:"table"`
	ID     string         `yaml:"id"`
	Values map[string]any `yaml:"values"`
}

// Step is one operation on the sub-table.
type Step struct {
	Op string `yaml:"op"`

	// As names the row created by an add step.
	As string `yaml:"as,omitempty"`

	// Row is the name or id of the row an edit, delete or flush targets.
	Row string `yaml:"row,omitempty"`

	// After is the row an added row is inserted after.
	After string `yaml:"after,omitempty"`

	Values map[string]any `yaml:"values,omitempty"`

	Field string `yaml:"field,omitempty"`
	Value any    `yaml:"value,omitempty"`
	Asc   bool   `yaml:"asc,omitempty"`

	// Rows and Default feed clear_and_set.
	Rows    []map[string]any `yaml:"rows,omitempty"`
	Default bool             `yaml:"default,omitempty"`

	// Index is the target position of a move step.
	Index int `yaml:"index,omitempty"`

	// Picks are the related records of an add_records step; Field names
	// the relation and Names binds the created rows in order.
	Picks []RecordPick `yaml:"records,omitempty"`
	Names []string     `yaml:"names,omitempty"`

	// Expect is the engine error code the step must fail with. Empty
	// means the step must succeed.
	Expect string `yaml:"expect,omitempty"`
}

// RecordPick is a related record chosen in an add_records step.
type RecordPick struct {
	ID     string         `yaml:"id"`
	Values map[string]any `yaml:"values,omitempty"`
}

// Step operations.
const (
	OpAdd         = "add"
	OpAddRecords  = "add_records"
	OpCopy        = "copy"
	OpEdit        = "edit"
	OpClearError  = "clear_error"
	OpDelete      = "delete"
	OpMove        = "move"
	OpClearAndSet = "clear_and_set"
	OpSort        = "sort"
	OpFlush       = "flush"
	OpLoad        = "load"
)

// Assertion checks the final rows.
type Assertion struct {
	// Type is one of row_count, row_values, row_order, cell_error.
	Type string `yaml:"type"`

	Row    string         `yaml:"row,omitempty"`
	Field  string         `yaml:"field,omitempty"`
	Code   string         `yaml:"code,omitempty"`
	Count  int            `yaml:"count,omitempty"`
	Rows   []string       `yaml:"rows,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertRowCount  = "row_count"
	AssertRowValues = "row_values"
	AssertRowOrder  = "row_order"
	AssertCellError = "cell_error"
)

// LoadScenario reads and parses a scenario YAML file. Unknown keys are
// rejected so typos fail loudly. A relative schema path is resolved
// against the directory of the file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Schema != "" && !filepath.IsAbs(scenario.Schema) {
		scenario.Schema = filepath.Join(filepath.Dir(path), scenario.Schema)
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
	if s.Schema == "" {
		return fmt.Errorf("schema is required")
	}
	if s.Table == "" {
		return fmt.Errorf("table is required")
	}
	if s.Record == "" {
		return fmt.Errorf("record is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, r := range s.Records {
		if r.Table == "" || r.ID == "" {
			return fmt.Errorf("records[%d]: table and id are required", i)
		}
	}
	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, st Step) error {
	switch st.Op {
	case OpAdd, OpLoad:
	case OpEdit, OpClearError:
		if st.Row == "" || st.Field == "" {
			return fmt.Errorf("steps[%d]: row and field are required for %s", i, st.Op)
		}
	case OpAddRecords:
		if st.Field == "" || len(st.Picks) == 0 {
			return fmt.Errorf("steps[%d]: field and records are required for add_records", i)
		}
		if len(st.Names) > len(st.Picks) {
			return fmt.Errorf("steps[%d]: more names than records", i)
		}
	case OpDelete, OpFlush, OpCopy, OpMove:
		if st.Row == "" {
			return fmt.Errorf("steps[%d]: row is required for %s", i, st.Op)
		}
	case OpSort:
		if st.Field == "" {
			return fmt.Errorf("steps[%d]: field is required for sort", i)
		}
	case OpClearAndSet:
		if st.Rows == nil {
			return fmt.Errorf("steps[%d]: rows is required for clear_and_set (use [] to clear)", i)
		}
	case "":
		return fmt.Errorf("steps[%d]: op is required", i)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", i, st.Op)
	}
	return nil
}

func validateAssertion(i int, a Assertion) error {
	switch a.Type {
	case AssertRowCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for row_count", i)
		}
	case AssertRowValues:
		if a.Row == "" || len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: row and expect are required for row_values", i)
		}
	case AssertRowOrder:
		if len(a.Rows) == 0 {
			return fmt.Errorf("assertions[%d]: rows list is required for row_order", i)
		}
	case AssertCellError:
		if a.Row == "" || a.Field == "" {
			return fmt.Errorf("assertions[%d]: row and field are required for cell_error", i)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", i)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
	}
	return nil
}
