// -- internal/reporting/reporter.go --
package reporting

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Reporter writes a run report to an output.
type Reporter interface {
	// Write records the suite. The report is emitted on Close.
	Write(suite *Suite) error
	// Close emits the report and closes the underlying writer.
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// FileNames maps each format to the file WriteAll produces for it.
var FileNames = map[string]string{
	"json":  "report.json",
	"junit": "junit.xml",
}

// New creates a new reporter based on the specified format and output path.
// An empty path or "stdout" writes to standard output.
func New(format, outputPath string) (Reporter, error) {
	if _, ok := FileNames[format]; !ok {
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	var writer io.WriteCloser
	if outputPath == "" || outputPath == "stdout" {
		// Wrap Stdout so Close() is a no-op.
		writer = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}

	switch format {
	case "junit":
		return NewJUnitReporter(writer), nil
	default:
		return NewJSONReporter(writer), nil
	}
}

// WriteAll saves the failure artifacts of suite into dir and then writes one
// report per format, concurrently. It returns the paths written.
func WriteAll(ctx context.Context, dir string, suite *Suite, formats []string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report directory %s: %w", dir, err)
	}
	if err := writeArtifacts(ctx, dir, suite); err != nil {
		return nil, err
	}

	paths := make([]string, len(formats))
	for i, format := range formats {
		name, ok := FileNames[strings.ToLower(format)]
		if !ok {
			return nil, fmt.Errorf("unsupported output format: %s", format)
		}
		paths[i] = filepath.Join(dir, name)
	}

	g, ctx := errgroup.WithContext(ctx)
	for i, format := range formats {
		format = strings.ToLower(format)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := New(format, paths[i])
			if err != nil {
				return err
			}
			if err := r.Write(suite); err != nil {
				r.Close()
				return err
			}
			return r.Close()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

// artifactBase names the files captured for the i-th case.
func artifactBase(i int, name string) string {
	slug := strings.Trim(unsafeFileChars.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if len(slug) > 60 {
		slug = slug[:60]
	}
	if slug == "" {
		slug = "case"
	}
	return fmt.Sprintf("%02d-%s", i+1, slug)
}

// writeArtifacts stores screenshots and page sources and records their
// file names on the cases.
func writeArtifacts(ctx context.Context, dir string, suite *Suite) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, c := range suite.Cases {
		if len(c.Screenshot) == 0 && c.PageSource == "" {
			continue
		}
		base := artifactBase(i, c.Name)
		var files []string
		if len(c.Screenshot) > 0 {
			files = append(files, base+".png")
		}
		if c.PageSource != "" {
			files = append(files, base+".html")
		}
		c.Artifacts = files

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if len(c.Screenshot) > 0 {
				if err := os.WriteFile(filepath.Join(dir, base+".png"), c.Screenshot, 0o644); err != nil {
					return fmt.Errorf("failed to write screenshot for %q: %w", c.Name, err)
				}
			}
			if c.PageSource != "" {
				if err := os.WriteFile(filepath.Join(dir, base+".html"), []byte(c.PageSource), 0o644); err != nil {
					return fmt.Errorf("failed to write page source for %q: %w", c.Name, err)
				}
			}
			return nil
		})
	}
	return g.Wait()
}
