// File: internal/scenario/scenario.go
package scenario

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/scalpel-ui/internal/browser/locator"
)

// Scenario is a scripted browser run: a start URL, named page objects and
// the cases to execute against them.
type Scenario struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
	// Timeout replaces the session default timeout for this run.
	Timeout time.Duration       `yaml:"timeout"`
	Pages   map[string]PageSpec `yaml:"pages"`
	Cases   []Case              `yaml:"cases"`
}

// PageSpec declares a page object. A zero Timeout means the session default.
type PageSpec struct {
	Timeout  time.Duration          `yaml:"timeout"`
	Elements map[string]ElementSpec `yaml:"elements"`
}

// ElementSpec locates one element. Exactly one strategy must be set. Within
// names another element of the same page whose subtree is searched.
type ElementSpec struct {
	XPath           string `yaml:"xpath"`
	CSS             string `yaml:"css"`
	ID              string `yaml:"id"`
	Name            string `yaml:"name"`
	ClassName       string `yaml:"class_name"`
	TagName         string `yaml:"tag_name"`
	LinkText        string `yaml:"link_text"`
	PartialLinkText string `yaml:"partial_link_text"`
	Within          string `yaml:"within"`
}

// Locator returns the one locator that is set.
func (e ElementSpec) Locator() (locator.Locator, error) {
	candidates := []locator.Locator{
		locator.ByXPath(e.XPath),
		locator.ByCSS(e.CSS),
		locator.ByID(e.ID),
		locator.ByName(e.Name),
		locator.ByClassName(e.ClassName),
		locator.ByTagName(e.TagName),
		locator.ByLinkText(e.LinkText),
		locator.ByPartialLinkText(e.PartialLinkText),
	}
	var set []locator.Locator
	for _, c := range candidates {
		if c.Expression != "" {
			set = append(set, c)
		}
	}
	switch len(set) {
	case 0:
		return locator.Locator{}, errors.New("no locator strategy set")
	case 1:
		return set[0], set[0].Validate()
	default:
		names := make([]string, len(set))
		for i, l := range set {
			names[i] = string(l.Strategy)
		}
		return locator.Locator{}, fmt.Errorf("several locator strategies set (%s)", strings.Join(names, ", "))
	}
}

// Case is one independent test case. Page names the page object its steps
// refer to.
type Case struct {
	Name  string `yaml:"name"`
	Page  string `yaml:"page"`
	Steps []Step `yaml:"steps"`
}

// Action is what a Step does.
type Action string

const (
	ActionNavigate        Action = "navigate"
	ActionRefresh         Action = "refresh"
	ActionClick           Action = "click"
	ActionJSClick         Action = "js_click"
	ActionType            Action = "type"
	ActionClear           Action = "clear"
	ActionSubmit          Action = "submit"
	ActionHover           Action = "hover"
	ActionDispatch        Action = "dispatch"
	ActionScrollIntoView  Action = "scroll_into_view"
	ActionScrollBy        Action = "scroll_by"
	ActionExecute         Action = "execute"
	ActionExpectText      Action = "expect_text"
	ActionExpectDisplayed Action = "expect_displayed"
	ActionExpectHidden    Action = "expect_hidden"
	ActionExpectEnabled   Action = "expect_enabled"
	ActionExpectAttribute Action = "expect_attribute"
	ActionExpectCSS       Action = "expect_css"
	ActionAlert           Action = "alert"
)

// Step is one action. Only the fields the action reads are meaningful.
type Step struct {
	Action  Action `yaml:"action"`
	Element string `yaml:"element"`

	URL    string `yaml:"url"`
	Text   string `yaml:"text"`
	Clear  *bool  `yaml:"clear"`
	Event  string `yaml:"event"`
	Align  *bool  `yaml:"align"`
	X      int    `yaml:"x"`
	Y      int    `yaml:"y"`
	Script string `yaml:"script"`

	// Expectations.
	Name     string  `yaml:"name"`
	Equals   *string `yaml:"equals"`
	Contains *string `yaml:"contains"`

	// Alerts.
	Create *string `yaml:"create"`
	Accept *bool   `yaml:"accept"`
}

// requirement lists what an action needs.
type requirement struct {
	element     bool // element must be set
	elementOpt  bool // element may be set
	url         bool
	event       bool
	script      bool
	name        bool
	expectation bool // exactly one of equals/contains
	matchOpt    bool // at most one of equals/contains
}

var actions = map[Action]requirement{
	ActionNavigate:        {url: true},
	ActionRefresh:         {},
	ActionClick:           {element: true},
	ActionJSClick:         {element: true},
	ActionType:            {element: true},
	ActionClear:           {element: true},
	ActionSubmit:          {element: true},
	ActionHover:           {element: true},
	ActionDispatch:        {element: true, event: true},
	ActionScrollIntoView:  {element: true},
	ActionScrollBy:        {elementOpt: true},
	ActionExecute:         {elementOpt: true, script: true},
	ActionExpectText:      {element: true, expectation: true},
	ActionExpectDisplayed: {element: true},
	ActionExpectHidden:    {element: true},
	ActionExpectEnabled:   {element: true},
	ActionExpectAttribute: {element: true, name: true, expectation: true},
	ActionExpectCSS:       {element: true, name: true, expectation: true},
	ActionAlert:           {matchOpt: true},
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open scenario: %w", err)
	}
	defer f.Close()

	sc, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return sc, nil
}

// Parse decodes a scenario, rejecting unknown keys, and validates it.
func Parse(r io.Reader) (*Scenario, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty scenario")
		}
		return nil, fmt.Errorf("failed to decode scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate reports every problem found, joined.
func (sc *Scenario) Validate() error {
	var errs []error
	if strings.TrimSpace(sc.URL) == "" {
		errs = append(errs, errors.New("url is required"))
	}
	if sc.Timeout < 0 {
		errs = append(errs, errors.New("timeout must not be negative"))
	}

	for _, name := range sortedKeys(sc.Pages) {
		errs = append(errs, sc.Pages[name].validate(name)...)
	}

	if len(sc.Cases) == 0 {
		errs = append(errs, errors.New("at least one case is required"))
	}
	seen := make(map[string]bool, len(sc.Cases))
	for i, c := range sc.Cases {
		label := fmt.Sprintf("case %d", i+1)
		if c.Name == "" {
			errs = append(errs, fmt.Errorf("%s: name is required", label))
		} else {
			label = fmt.Sprintf("case %q", c.Name)
			if seen[c.Name] {
				errs = append(errs, fmt.Errorf("%s: duplicate name", label))
			}
			seen[c.Name] = true
		}
		errs = append(errs, sc.validateCase(label, c)...)
	}
	return errors.Join(errs...)
}

func (p PageSpec) validate(page string) []error {
	var errs []error
	if p.Timeout < 0 {
		errs = append(errs, fmt.Errorf("page %q: timeout must not be negative", page))
	}
	for _, name := range sortedKeys(p.Elements) {
		el := p.Elements[name]
		if _, err := el.Locator(); err != nil {
			errs = append(errs, fmt.Errorf("page %q element %q: %w", page, name, err))
		}
		if el.Within == "" {
			continue
		}
		if _, ok := p.Elements[el.Within]; !ok {
			errs = append(errs, fmt.Errorf("page %q element %q: within unknown element %q", page, name, el.Within))
			continue
		}
		if p.withinCycle(name) {
			errs = append(errs, fmt.Errorf("page %q element %q: within chain loops", page, name))
		}
	}
	return errs
}

func (p PageSpec) withinCycle(start string) bool {
	visited := map[string]bool{}
	for name := start; name != ""; name = p.Elements[name].Within {
		if visited[name] {
			return true
		}
		visited[name] = true
	}
	return false
}

func (sc *Scenario) validateCase(label string, c Case) []error {
	var errs []error
	var page PageSpec
	hasPage := false
	if c.Page != "" {
		page, hasPage = sc.Pages[c.Page]
		if !hasPage {
			errs = append(errs, fmt.Errorf("%s: unknown page %q", label, c.Page))
		}
	}
	if len(c.Steps) == 0 {
		errs = append(errs, fmt.Errorf("%s: at least one step is required", label))
	}

	for i, st := range c.Steps {
		at := fmt.Sprintf("%s step %d (%s)", label, i+1, st.Action)
		req, ok := actions[st.Action]
		if !ok {
			errs = append(errs, fmt.Errorf("%s: unknown action", at))
			continue
		}

		switch {
		case st.Element == "" && req.element:
			errs = append(errs, fmt.Errorf("%s: element is required", at))
		case st.Element != "" && !req.element && !req.elementOpt:
			errs = append(errs, fmt.Errorf("%s: element is not used by this action", at))
		case st.Element != "" && c.Page == "":
			errs = append(errs, fmt.Errorf("%s: element %q needs the case to name a page", at, st.Element))
		case st.Element != "" && hasPage:
			if _, ok := page.Elements[st.Element]; !ok {
				errs = append(errs, fmt.Errorf("%s: unknown element %q on page %q", at, st.Element, c.Page))
			}
		}

		if req.url && st.URL == "" {
			errs = append(errs, fmt.Errorf("%s: url is required", at))
		}
		if req.event && st.Event == "" {
			errs = append(errs, fmt.Errorf("%s: event is required", at))
		}
		if req.script && st.Script == "" {
			errs = append(errs, fmt.Errorf("%s: script is required", at))
		}
		if req.name && st.Name == "" {
			errs = append(errs, fmt.Errorf("%s: name is required", at))
		}
		both := st.Equals != nil && st.Contains != nil
		switch {
		case req.expectation && st.Equals == nil && st.Contains == nil:
			errs = append(errs, fmt.Errorf("%s: one of equals or contains is required", at))
		case (req.expectation || req.matchOpt) && both:
			errs = append(errs, fmt.Errorf("%s: equals and contains are exclusive", at))
		case !req.expectation && !req.matchOpt && (st.Equals != nil || st.Contains != nil):
			errs = append(errs, fmt.Errorf("%s: equals/contains are not used by this action", at))
		}
	}
	return errs
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// boolOr dereferences b, or returns def when it is unset.
func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
