package testcase

import (
	"encoding/xml"
	"fmt"
	"sort"
	"strings"
	"time"
)

// TemplateSummary describes an uploaded XML template at a glance. It feeds
// the analysis prompt, not the generator, so only shallow structure is kept.
type TemplateSummary struct {
	RootTag       string            `json:"root_tag"`
	TotalElements int               `json:"total_elements"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	CaseCount     int               `json:"case_count"`
	Cases         []CaseInfo        `json:"cases,omitempty"`
	Categories    []string          `json:"categories,omitempty"`
	Priorities    []string          `json:"priorities,omitempty"`
}

// CaseInfo identifies one test case found in a template.
type CaseInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

const maxSummarizedCases = 5

type xmlNode struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Text    string     `xml:",chardata"`
	Nodes   []xmlNode  `xml:",any"`
}

// ParseTemplate summarizes an uploaded test case template.
func ParseTemplate(content []byte) (TemplateSummary, error) {
	var root xmlNode
	if err := xml.Unmarshal(content, &root); err != nil {
		return TemplateSummary{}, fmt.Errorf("invalid XML: %w", err)
	}

	summary := TemplateSummary{
		RootTag:       root.XMLName.Local,
		TotalElements: countNodes(root),
		Attributes:    attrMap(root.Attrs),
	}

	var cases []xmlNode
	if strings.EqualFold(root.XMLName.Local, "testcase") {
		cases = []xmlNode{root}
	} else {
		collectCases(root, &cases)
	}
	summary.CaseCount = len(cases)

	categories := map[string]bool{}
	priorities := map[string]bool{}
	for i, tc := range cases {
		attrs := attrMap(tc.Attrs)
		if v := attrs["category"]; v != "" {
			categories[v] = true
		}
		if v := attrs["priority"]; v != "" {
			priorities[v] = true
		}
		if i >= maxSummarizedCases {
			continue
		}
		info := CaseInfo{ID: firstNonEmpty(attrs["id"], attrs["ID"], fmt.Sprintf("case_%d", i+1))}
		info.Name = firstNonEmpty(attrs["name"], attrs["title"], strings.TrimSpace(tc.Text), "Unknown")
		summary.Cases = append(summary.Cases, info)
	}
	summary.Categories = sortedKeys(categories)
	summary.Priorities = sortedKeys(priorities)

	return summary, nil
}

func collectCases(n xmlNode, out *[]xmlNode) {
	for _, child := range n.Nodes {
		if strings.EqualFold(child.XMLName.Local, "testcase") {
			*out = append(*out, child)
			continue
		}
		collectCases(child, out)
	}
}

func countNodes(n xmlNode) int {
	total := 1
	for _, child := range n.Nodes {
		total += countNodes(child)
	}
	return total
}

func attrMap(attrs []xml.Attr) map[string]string {
	if len(attrs) == 0 {
		return nil
	}
	m := make(map[string]string, len(attrs))
	for _, a := range attrs {
		m[a.Name.Local] = a.Value
	}
	return m
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func sortedKeys(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type exportParam struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

type exportComponent struct {
	Type   string        `xml:"type,attr"`
	Name   string        `xml:"name,attr"`
	Params []exportParam `xml:"params>param,omitempty"`
}

type exportBlock struct {
	Index      int               `xml:"index,attr"`
	Name       string            `xml:"name,attr"`
	Components []exportComponent `xml:"component"`
}

type exportCase struct {
	ID              string        `xml:"id,attr"`
	Name            string        `xml:"name,attr"`
	Preconditions   []exportBlock `xml:"preconditions>precondition,omitempty"`
	Steps           []exportBlock `xml:"steps>step,omitempty"`
	ExpectedResults []exportBlock `xml:"expectedResults>expectedResult,omitempty"`
}

type exportRoot struct {
	XMLName     xml.Name     `xml:"testcases"`
	GeneratedAt string       `xml:"generated_at,attr"`
	Count       int          `xml:"count,attr"`
	Cases       []exportCase `xml:"testcase"`
}

// ExportXML renders finalized test cases as the downloadable XML document.
func ExportXML(cases []TestCase, now time.Time) (string, error) {
	if err := Validate(cases); err != nil {
		return "", err
	}

	doc := exportRoot{
		GeneratedAt: now.UTC().Format(time.RFC3339),
		Count:       len(cases),
	}
	for _, tc := range cases {
		doc.Cases = append(doc.Cases, exportCase{
			ID:              tc.ID,
			Name:            tc.Name,
			Preconditions:   exportBlocks(tc.Preconditions),
			Steps:           exportBlocks(tc.Steps),
			ExpectedResults: exportBlocks(tc.ExpectedResults),
		})
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("render XML: %w", err)
	}
	return xml.Header + string(out) + "\n", nil
}

func exportBlocks(blocks []Block) []exportBlock {
	out := make([]exportBlock, 0, len(blocks))
	for i, b := range blocks {
		eb := exportBlock{Index: i + 1, Name: b.Name}
		for _, c := range b.Components {
			ec := exportComponent{Type: c.Type, Name: c.Name}
			// Deterministic param order keeps exports diffable.
			keys := make([]string, 0, len(c.Params))
			for k := range c.Params {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				ec.Params = append(ec.Params, exportParam{Name: k, Value: c.Params[k]})
			}
			eb.Components = append(eb.Components, ec)
		}
		out = append(out, eb)
	}
	return out
}
