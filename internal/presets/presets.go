// Package presets holds the static configuration catalog served to the
// editor UI: selectable API versions, reusable test steps and the component
// palette. The catalog is compiled in; there is nothing to load or reload.
package presets

// APIVersion is one selectable target API version.
type APIVersion struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Component is one building block inside a step.
type Component struct {
	Type   string            `json:"type"`
	Name   string            `json:"name"`
	Params map[string]string `json:"params,omitempty"`
}

// Step is a reusable preset step offered in the editor.
type Step struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Category    string      `json:"category"`
	Components  []Component `json:"components"`
}

// PaletteEntry describes one component type for the editor palette.
type PaletteEntry struct {
	ID            string            `json:"id"`
	Type          string            `json:"type"`
	Name          string            `json:"name"`
	Icon          string            `json:"icon"`
	Description   string            `json:"description"`
	DefaultParams map[string]string `json:"default_params"`
}

// Catalog bundles the whole static configuration.
type Catalog struct {
	APIVersions []APIVersion   `json:"api_versions"`
	Steps       []Step         `json:"preset_steps"`
	Components  []PaletteEntry `json:"preset_components"`
}

// Default returns the built-in catalog.
func Default() Catalog {
	return Catalog{
		APIVersions: apiVersions,
		Steps:       presetSteps,
		Components:  paletteEntries,
	}
}

var apiVersions = []APIVersion{
	{Value: "v1.0", Label: "API v1.0 (2024-01)"},
	{Value: "v1.5", Label: "API v1.5 (2024-06)"},
	{Value: "v2.0", Label: "API v2.0 (2024-12)"},
	{Value: "v2.1", Label: "API v2.1 (2025-01)"},
}

var presetSteps = []Step{
	{
		ID:          "preset_step_1",
		Name:        "Open login page",
		Description: "Open the login page and wait for it to load",
		Category:    "navigation",
		Components: []Component{
			{Type: "api", Name: "Fetch login page", Params: map[string]string{"method": "GET", "url": "/login"}},
			{Type: "assert", Name: "Page loaded", Params: map[string]string{"type": "exists", "expected": "#login-form"}},
		},
	},
	{
		ID:          "preset_step_2",
		Name:        "Enter username",
		Description: "Type the test username into the username field",
		Category:    "input",
		Components: []Component{
			{Type: "input", Name: "Enter username", Params: map[string]string{"selector": "#username", "value": "testuser", "clear": "true"}},
		},
	},
	{
		ID:          "preset_step_3",
		Name:        "Enter password",
		Description: "Type the test password into the password field",
		Category:    "input",
		Components: []Component{
			{Type: "input", Name: "Enter password", Params: map[string]string{"selector": "#password", "value": "password123", "clear": "true", "secure": "true"}},
		},
	},
	{
		ID:          "preset_step_4",
		Name:        "Submit login",
		Description: "Click the login button to submit the form",
		Category:    "action",
		Components: []Component{
			{Type: "button", Name: "Click login", Params: map[string]string{"selector": "#login-btn", "action": "click", "wait_after": "2000"}},
		},
	},
	{
		ID:          "preset_step_5",
		Name:        "Verify logged in",
		Description: "Verify the user reached the dashboard after login",
		Category:    "validation",
		Components: []Component{
			{Type: "assert", Name: "URL is dashboard", Params: map[string]string{"type": "equals", "expected": "/dashboard"}},
			{Type: "assert", Name: "User info visible", Params: map[string]string{"type": "exists", "expected": ".user-info"}},
		},
	},
	{
		ID:          "preset_step_6",
		Name:        "Open search page",
		Description: "Navigate to the search page",
		Category:    "navigation",
		Components: []Component{
			{Type: "api", Name: "Fetch search page", Params: map[string]string{"method": "GET", "url": "/search"}},
		},
	},
	{
		ID:          "preset_step_7",
		Name:        "Enter search keyword",
		Description: "Type a keyword into the search box",
		Category:    "input",
		Components: []Component{
			{Type: "input", Name: "Enter keyword", Params: map[string]string{"selector": "#search-input", "value": "keyword", "clear": "true"}},
		},
	},
	{
		ID:          "preset_step_8",
		Name:        "Run search",
		Description: "Submit the search and wait for results",
		Category:    "action",
		Components: []Component{
			{Type: "button", Name: "Click search", Params: map[string]string{"selector": "#search-btn", "action": "click", "wait_after": "1500"}},
			{Type: "assert", Name: "Results present", Params: map[string]string{"type": "exists", "expected": ".search-results"}},
		},
	},
}

var paletteEntries = []PaletteEntry{
	{
		ID: "comp_input", Type: "input", Name: "Text input", Icon: "edit",
		Description:   "Type text into a field",
		DefaultParams: map[string]string{"selector": "", "value": "", "clear": "true", "validation": "text", "maxLength": "100"},
	},
	{
		ID: "comp_button", Type: "button", Name: "Button", Icon: "pointer",
		Description:   "Click an element",
		DefaultParams: map[string]string{"selector": "", "action": "click", "wait_after": "1000", "double_click": "false"},
	},
	{
		ID: "comp_select", Type: "select", Name: "Dropdown", Icon: "list",
		Description:   "Pick an option from a dropdown",
		DefaultParams: map[string]string{"selector": "", "value": "", "by_text": "true", "multiple": "false"},
	},
	{
		ID: "comp_checkbox", Type: "checkbox", Name: "Checkbox", Icon: "check",
		Description:   "Toggle a checkbox",
		DefaultParams: map[string]string{"selector": "", "checked": "true", "label": ""},
	},
	{
		ID: "comp_radio", Type: "radio", Name: "Radio button", Icon: "radio",
		Description:   "Select a radio option",
		DefaultParams: map[string]string{"selector": "", "value": "", "label": ""},
	},
	{
		ID: "comp_api", Type: "api", Name: "API call", Icon: "api",
		Description:   "Issue an HTTP request",
		DefaultParams: map[string]string{"method": "GET", "url": "/api/endpoint", "timeout": "30000"},
	},
	{
		ID: "comp_assert", Type: "assert", Name: "Assertion", Icon: "check-circle",
		Description:   "Verify an expected outcome",
		DefaultParams: map[string]string{"type": "equals", "expected": "", "timeout": "5000", "message": "assertion failed"},
	},
	{
		ID: "comp_wait", Type: "wait", Name: "Wait", Icon: "clock",
		Description:   "Pause before the next component",
		DefaultParams: map[string]string{"duration": "1000", "condition": "time"},
	},
}
