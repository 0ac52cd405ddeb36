// internal/reporting/types.go
package reporting

import "time"

// Status is the outcome of a case or step.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Suite is one scenario run.
type Suite struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	URL       string        `json:"url"`
	Driver    string        `json:"driver,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	// Error is set when the run could not start at all.
	Error string  `json:"error,omitempty"`
	Cases []*Case `json:"cases"`
}

// Case is one scenario case.
type Case struct {
	Name     string        `json:"name"`
	Page     string        `json:"page,omitempty"`
	Status   Status        `json:"status"`
	Duration time.Duration `json:"duration_ns"`
	Steps    []Step        `json:"steps"`
	Error    string        `json:"error,omitempty"`

	// Captured on failure. They are written next to the reports and
	// referenced through Artifacts.
	Screenshot []byte   `json:"-"`
	PageSource string   `json:"-"`
	Artifacts  []string `json:"artifacts,omitempty"`
}

// Step is one executed action.
type Step struct {
	Index    int           `json:"index"`
	Action   string        `json:"action"`
	Element  string        `json:"element,omitempty"`
	Status   Status        `json:"status"`
	Duration time.Duration `json:"duration_ns"`
	Error    string        `json:"error,omitempty"`
}

// Failed counts failed cases.
func (s *Suite) Failed() int {
	n := 0
	for _, c := range s.Cases {
		if c.Status == StatusFailed {
			n++
		}
	}
	return n
}

// OK reports whether the run started and every case passed.
func (s *Suite) OK() bool {
	return s.Error == "" && s.Failed() == 0
}
