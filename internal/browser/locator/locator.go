// File: internal/browser/locator/locator.go
package locator

import (
	"fmt"
	"strings"
)

// Strategy is how a Locator's expression is interpreted by the browser.
type Strategy string

const (
	XPath           Strategy = "xpath"
	CSS             Strategy = "css"
	ID              Strategy = "id"
	Name            Strategy = "name"
	ClassName       Strategy = "class name"
	TagName         Strategy = "tag name"
	LinkText        Strategy = "link text"
	PartialLinkText Strategy = "partial link text"
)

var strategies = map[Strategy]bool{
	XPath: true, CSS: true, ID: true, Name: true,
	ClassName: true, TagName: true, LinkText: true, PartialLinkText: true,
}

// Locator identifies a logical element. It is an immutable, comparable value:
// rebinding always reuses the exact Locator a handle was created with.
type Locator struct {
	Strategy   Strategy
	Expression string
}

func ByXPath(expr string) Locator           { return Locator{Strategy: XPath, Expression: expr} }
func ByCSS(selector string) Locator         { return Locator{Strategy: CSS, Expression: selector} }
func ByID(id string) Locator                { return Locator{Strategy: ID, Expression: id} }
func ByName(name string) Locator            { return Locator{Strategy: Name, Expression: name} }
func ByClassName(class string) Locator      { return Locator{Strategy: ClassName, Expression: class} }
func ByTagName(tag string) Locator          { return Locator{Strategy: TagName, Expression: tag} }
func ByLinkText(text string) Locator        { return Locator{Strategy: LinkText, Expression: text} }
func ByPartialLinkText(text string) Locator { return Locator{Strategy: PartialLinkText, Expression: text} }

// Parse builds a Locator from a strategy name as written in config files.
// Underscores and dashes are accepted in place of spaces ("link_text").
func Parse(strategy, expr string) (Locator, error) {
	s := Strategy(strings.NewReplacer("_", " ", "-", " ").Replace(strings.ToLower(strings.TrimSpace(strategy))))
	if s == "selector" {
		s = CSS
	}
	loc := Locator{Strategy: s, Expression: expr}
	return loc, loc.Validate()
}

// Validate checks that the strategy is known and the expression non-empty.
func (l Locator) Validate() error {
	if !strategies[l.Strategy] {
		return fmt.Errorf("unknown locator strategy %q", l.Strategy)
	}
	if strings.TrimSpace(l.Expression) == "" {
		return fmt.Errorf("empty %s expression", l.Strategy)
	}
	return nil
}

func (l Locator) String() string {
	return fmt.Sprintf("%s=%s", l.Strategy, l.Expression)
}
