// internal/reporting/junit_reporter.go
package reporting

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/beevik/etree"
)

// JUnitReporter writes the suite in the JUnit XML layout understood by CI
// servers: one testsuite, one testcase per scenario case.
type JUnitReporter struct {
	writer io.WriteCloser
	mu     sync.Mutex
	suite  *Suite
}

func NewJUnitReporter(writer io.WriteCloser) *JUnitReporter {
	return &JUnitReporter{writer: writer}
}

func (r *JUnitReporter) Write(suite *Suite) error {
	if suite == nil {
		return errors.New("junit reporter: nil suite")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.suite = suite
	return nil
}

func (r *JUnitReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var writeErr error
	if r.suite != nil {
		doc := BuildJUnit(r.suite)
		doc.Indent(2)
		_, writeErr = doc.WriteTo(r.writer)
	}
	return errors.Join(writeErr, r.writer.Close())
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

// BuildJUnit renders suite as a JUnit document.
func BuildJUnit(suite *Suite) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("testsuites")
	root.CreateAttr("name", suite.Name)
	root.CreateAttr("tests", strconv.Itoa(len(suite.Cases)))
	root.CreateAttr("failures", strconv.Itoa(suite.Failed()))
	root.CreateAttr("time", seconds(suite.Duration))

	ts := root.CreateElement("testsuite")
	ts.CreateAttr("name", suite.Name)
	ts.CreateAttr("id", suite.ID)
	ts.CreateAttr("tests", strconv.Itoa(len(suite.Cases)))
	ts.CreateAttr("failures", strconv.Itoa(suite.Failed()))
	ts.CreateAttr("errors", "0")
	ts.CreateAttr("skipped", strconv.Itoa(countStatus(suite, StatusSkipped)))
	ts.CreateAttr("time", seconds(suite.Duration))
	ts.CreateAttr("timestamp", suite.StartedAt.UTC().Format(time.RFC3339))

	props := ts.CreateElement("properties")
	for _, kv := range [][2]string{{"url", suite.URL}, {"driver", suite.Driver}} {
		if kv[1] == "" {
			continue
		}
		p := props.CreateElement("property")
		p.CreateAttr("name", kv[0])
		p.CreateAttr("value", kv[1])
	}

	if suite.Error != "" {
		e := ts.CreateElement("system-err")
		e.SetText(suite.Error)
	}

	for _, c := range suite.Cases {
		tc := ts.CreateElement("testcase")
		tc.CreateAttr("name", c.Name)
		tc.CreateAttr("classname", classname(suite.Name, c.Page))
		tc.CreateAttr("time", seconds(c.Duration))

		switch c.Status {
		case StatusFailed:
			f := tc.CreateElement("failure")
			f.CreateAttr("message", c.Error)
			f.CreateAttr("type", "AssertionError")
			f.SetText(stepLog(c))
		case StatusSkipped:
			tc.CreateElement("skipped")
		}

		if len(c.Artifacts) > 0 {
			var b strings.Builder
			for _, a := range c.Artifacts {
				fmt.Fprintf(&b, "[[ATTACHMENT|%s]]\n", a)
			}
			tc.CreateElement("system-out").SetText(b.String())
		}
	}
	return doc
}

func classname(suite, page string) string {
	if page == "" {
		return suite
	}
	return suite + "." + page
}

func countStatus(suite *Suite, status Status) int {
	n := 0
	for _, c := range suite.Cases {
		if c.Status == status {
			n++
		}
	}
	return n
}

// stepLog lists the steps of a case, one per line.
func stepLog(c *Case) string {
	var b strings.Builder
	for _, s := range c.Steps {
		fmt.Fprintf(&b, "%d. %s", s.Index+1, s.Action)
		if s.Element != "" {
			fmt.Fprintf(&b, " %s", s.Element)
		}
		fmt.Fprintf(&b, " [%s %s]", s.Status, s.Duration.Round(time.Millisecond))
		if s.Error != "" {
			fmt.Fprintf(&b, ": %s", s.Error)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
