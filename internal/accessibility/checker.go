// Package accessibility checks rendered studio pages for WCAG issues the
// markup alone can reveal: page language, title, image alternatives, button
// names, duplicate ids and heading order.
package accessibility

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"golang.org/x/net/html"
)

// WCAGLevel represents different WCAG compliance levels.
type WCAGLevel string

const (
	WCAGLevelA  WCAGLevel = "A"
	WCAGLevelAA WCAGLevel = "AA"
)

// ViolationSeverity represents the severity level of an accessibility violation.
type ViolationSeverity string

const (
	SeverityError   ViolationSeverity = "error"
	SeverityWarning ViolationSeverity = "warning"
)

// Rule is one check the checker runs.
type Rule struct {
	ID       string            `json:"id"`
	Criteria string            `json:"criteria"`
	Level    WCAGLevel         `json:"level"`
	Severity ViolationSeverity `json:"severity"`
	check    func(*document) []finding
}

// Violation is a rule failure on one element.
type Violation struct {
	Rule     string            `json:"rule" yaml:"rule"`
	Criteria string            `json:"criteria" yaml:"criteria"`
	Severity ViolationSeverity `json:"severity" yaml:"severity"`
	Selector string            `json:"selector" yaml:"selector"`
	Message  string            `json:"message" yaml:"message"`
}

// Report lists the violations found on one page.
type Report struct {
	Page       string      `json:"page" yaml:"page"`
	Violations []Violation `json:"violations" yaml:"violations"`
}

// Errors counts the error-severity violations.
func (r Report) Errors() int {
	n := 0
	for _, v := range r.Violations {
		if v.Severity == SeverityError {
			n++
		}
	}
	return n
}

type finding struct {
	node    *html.Node
	message string
}

type document struct {
	root     *html.Node
	elements []*html.Node
}

// Rules returns the rule set in a stable order.
func Rules() []Rule {
	return []Rule{
		{ID: "html-lang", Criteria: "3.1.1", Level: WCAGLevelA, Severity: SeverityError, check: checkLang},
		{ID: "document-title", Criteria: "2.4.2", Level: WCAGLevelA, Severity: SeverityError, check: checkTitle},
		{ID: "image-alt", Criteria: "1.1.1", Level: WCAGLevelA, Severity: SeverityError, check: checkImageAlt},
		{ID: "button-name", Criteria: "4.1.2", Level: WCAGLevelA, Severity: SeverityError, check: checkButtonName},
		{ID: "duplicate-id", Criteria: "4.1.1", Level: WCAGLevelA, Severity: SeverityError, check: checkDuplicateIDs},
		{ID: "heading-order", Criteria: "1.3.1", Level: WCAGLevelAA, Severity: SeverityWarning, check: checkHeadingOrder},
	}
}

// Checker runs the rules up to a WCAG level.
type Checker struct {
	level WCAGLevel
}

// NewChecker creates a checker for level. Level A skips the AA rules.
func NewChecker(level WCAGLevel) *Checker {
	if level == "" {
		level = WCAGLevelAA
	}
	return &Checker{level: level}
}

// Check parses r as a full HTML document and reports its violations.
func (c *Checker) Check(page string, r io.Reader) (Report, error) {
	root, err := html.Parse(r)
	if err != nil {
		return Report{}, fmt.Errorf("parsing %s: %w", page, err)
	}

	doc := &document{root: root}
	walk(root, func(n *html.Node) {
		if n.Type == html.ElementNode {
			doc.elements = append(doc.elements, n)
		}
	})

	report := Report{Page: page, Violations: []Violation{}}
	for _, rule := range Rules() {
		if c.level == WCAGLevelA && rule.Level != WCAGLevelA {
			continue
		}
		for _, f := range rule.check(doc) {
			report.Violations = append(report.Violations, Violation{
				Rule:     rule.ID,
				Criteria: rule.Criteria,
				Severity: rule.Severity,
				Selector: selector(f.node),
				Message:  f.message,
			})
		}
	}

	sort.SliceStable(report.Violations, func(i, j int) bool {
		return report.Violations[i].Severity == SeverityError && report.Violations[j].Severity != SeverityError
	})
	return report, nil
}

func checkLang(doc *document) []finding {
	for _, n := range doc.elements {
		if n.Data == "html" {
			if strings.TrimSpace(attr(n, "lang")) == "" {
				return []finding{{n, "HTML element missing lang attribute"}}
			}
			return nil
		}
	}
	return nil
}

func checkTitle(doc *document) []finding {
	for _, n := range doc.elements {
		if n.Data == "title" && strings.TrimSpace(textContent(n)) != "" {
			return nil
		}
	}
	return []finding{{doc.root, "Document has no non-empty title"}}
}

func checkImageAlt(doc *document) []finding {
	var out []finding
	for _, n := range doc.elements {
		if n.Data != "img" {
			continue
		}
		if _, ok := lookup(n, "alt"); !ok && attr(n, "role") != "presentation" {
			out = append(out, finding{n, "Image missing alt attribute"})
		}
	}
	return out
}

func checkButtonName(doc *document) []finding {
	var out []finding
	for _, n := range doc.elements {
		if n.Data != "button" {
			continue
		}
		if strings.TrimSpace(textContent(n)) == "" &&
			strings.TrimSpace(attr(n, "aria-label")) == "" &&
			strings.TrimSpace(attr(n, "title")) == "" {
			out = append(out, finding{n, "Button missing accessible name"})
		}
	}
	return out
}

func checkDuplicateIDs(doc *document) []finding {
	seen := make(map[string]bool)
	var out []finding
	for _, n := range doc.elements {
		id := attr(n, "id")
		if id == "" {
			continue
		}
		if seen[id] {
			out = append(out, finding{n, "Duplicate ID: " + id})
		}
		seen[id] = true
	}
	return out
}

// checkHeadingOrder flags headings that skip a level on the way down.
func checkHeadingOrder(doc *document) []finding {
	var out []finding
	prev := 0
	for _, n := range doc.elements {
		level := headingLevel(n.Data)
		if level == 0 {
			continue
		}
		if prev > 0 && level > prev+1 {
			out = append(out, finding{n, fmt.Sprintf("Heading level jumps from h%d to h%d", prev, level)})
		}
		prev = level
	}
	return out
}

func headingLevel(tag string) int {
	if len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6' {
		return int(tag[1] - '0')
	}
	return 0
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func lookup(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func attr(n *html.Node, key string) string {
	v, _ := lookup(n, key)
	return v
}

func textContent(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	})
	return b.String()
}

func selector(n *html.Node) string {
	if n == nil || n.Type != html.ElementNode {
		return "document"
	}
	s := n.Data
	if id := attr(n, "id"); id != "" {
		return s + "#" + id
	}
	if class := strings.Fields(attr(n, "class")); len(class) > 0 {
		s += "." + strings.Join(class, ".")
	}
	if island := attr(n, "data-island"); island != "" {
		s += fmt.Sprintf("[data-island=%q]", island)
	}
	return s
}
