// internal/reporting/json_reporter.go
package reporting

import (
	"errors"
	"io"
	"sync"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// JSONReporter writes the suite as indented JSON. It is thread safe.
type JSONReporter struct {
	writer io.WriteCloser
	mu     sync.Mutex
	suite  *Suite
}

func NewJSONReporter(writer io.WriteCloser) *JSONReporter {
	return &JSONReporter{writer: writer}
}

func (r *JSONReporter) Write(suite *Suite) error {
	if suite == nil {
		return errors.New("json reporter: nil suite")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.suite = suite
	return nil
}

// Close encodes the recorded suite, or an empty object when nothing was
// written, and closes the writer.
func (r *JSONReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var encodeErr error
	if r.suite != nil {
		enc := json.NewEncoder(r.writer)
		enc.SetIndent("", "  ")
		encodeErr = enc.Encode(r.suite)
	} else {
		_, encodeErr = io.WriteString(r.writer, "{}\n")
	}
	return errors.Join(encodeErr, r.writer.Close())
}
