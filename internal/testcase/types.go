package testcase

import "fmt"

// Component is an atomic action or assertion inside a block.
type Component struct {
	ID     string            `json:"id"`
	Type   string            `json:"type"`
	Name   string            `json:"name"`
	Params map[string]string `json:"params,omitempty"`
}

// Block groups components under a named precondition, step or expected result.
type Block struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Expanded   bool        `json:"expanded,omitempty"`
	Components []Component `json:"components,omitempty"`
}

// TestCase is one structured generated test case.
type TestCase struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Preconditions   []Block `json:"preconditions,omitempty"`
	Steps           []Block `json:"steps,omitempty"`
	ExpectedResults []Block `json:"expectedResults,omitempty"`
}

// Validate checks the minimum shape a finalized test case needs.
func Validate(cases []TestCase) error {
	if len(cases) == 0 {
		return fmt.Errorf("no test cases provided")
	}
	for i, tc := range cases {
		if tc.ID == "" {
			return fmt.Errorf("test case %d is missing an id", i)
		}
		if tc.Name == "" {
			return fmt.Errorf("test case %q is missing a name", tc.ID)
		}
		if len(tc.Steps) == 0 {
			return fmt.Errorf("test case %q has no steps", tc.ID)
		}
	}
	return nil
}
