// File: internal/scenario/runner.go
package scenario

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-ui/internal/browser/element"
	"github.com/xkilldash9x/scalpel-ui/internal/browser/session"
	"github.com/xkilldash9x/scalpel-ui/internal/reporting"
)

const defaultCaptureTimeout = 10 * time.Second

// Runner executes scenarios on one Session. Cases run sequentially; each
// starts from the scenario URL.
type Runner struct {
	session        *session.Session
	logger         *zap.Logger
	screenshots    bool
	driverName     string
	captureTimeout time.Duration
}

// Option configures a Runner.
type Option func(*Runner)

// WithScreenshots captures a screenshot and the page source of every failed case.
func WithScreenshots(on bool) Option {
	return func(r *Runner) { r.screenshots = on }
}

// WithDriverName records the transport in the report.
func WithDriverName(name string) Option {
	return func(r *Runner) { r.driverName = name }
}

func NewRunner(s *session.Session, logger *zap.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		session:        s,
		logger:         logger.Named("scenario"),
		captureTimeout: defaultCaptureTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run opens the session on the scenario URL, executes every case and closes
// the session again. Failures are recorded in the returned suite; a session
// that cannot be opened sets Suite.Error and skips every case.
func (r *Runner) Run(ctx context.Context, sc *Scenario) *reporting.Suite {
	suite := &reporting.Suite{
		ID:        uuid.NewString(),
		Name:      sc.Name,
		URL:       sc.URL,
		Driver:    r.driverName,
		StartedAt: time.Now(),
	}
	logger := r.logger.With(zap.String("scenario", sc.Name), zap.String("run_id", suite.ID))
	if sc.Timeout > 0 {
		r.session.SetDefaultTimeout(sc.Timeout)
	}

	logger.Info("Starting scenario.", zap.String("url", sc.URL), zap.Int("cases", len(sc.Cases)))
	err := session.Run(ctx, r.session, sc.URL, func(ctx context.Context, s *session.Session) error {
		for i, c := range sc.Cases {
			suite.Cases = append(suite.Cases, r.runCase(ctx, logger, sc, i, c))
		}
		return nil
	})
	if err != nil {
		logger.Error("Scenario run failed.", zap.Error(err))
		suite.Error = err.Error()
	}
	for i := len(suite.Cases); i < len(sc.Cases); i++ {
		suite.Cases = append(suite.Cases, skippedCase(sc.Cases[i], "session unavailable"))
	}
	suite.Duration = time.Since(suite.StartedAt)

	logger.Info("Scenario finished.",
		zap.Int("cases", len(suite.Cases)),
		zap.Int("failed", suite.Failed()),
		zap.Duration("duration", suite.Duration))
	return suite
}

func skippedCase(c Case, reason string) *reporting.Case {
	rc := &reporting.Case{Name: c.Name, Page: c.Page, Status: reporting.StatusSkipped, Error: reason}
	for i, st := range c.Steps {
		rc.Steps = append(rc.Steps, reporting.Step{Index: i, Action: string(st.Action), Element: st.Element, Status: reporting.StatusSkipped})
	}
	return rc
}

func (r *Runner) runCase(ctx context.Context, logger *zap.Logger, sc *Scenario, idx int, c Case) *reporting.Case {
	if err := ctx.Err(); err != nil {
		return skippedCase(c, err.Error())
	}

	logger = logger.With(zap.String("case", c.Name))
	start := time.Now()
	rc := &reporting.Case{Name: c.Name, Page: c.Page, Status: reporting.StatusPassed}

	fail := func(err error) *reporting.Case {
		rc.Status = reporting.StatusFailed
		rc.Error = err.Error()
		for i := len(rc.Steps); i < len(c.Steps); i++ {
			st := c.Steps[i]
			rc.Steps = append(rc.Steps, reporting.Step{Index: i, Action: string(st.Action), Element: st.Element, Status: reporting.StatusSkipped})
		}
		r.capture(ctx, logger, rc)
		rc.Duration = time.Since(start)
		logger.Warn("Case failed.", zap.Error(err))
		return rc
	}

	// Every case but the first starts from a fresh load of the scenario URL.
	if idx > 0 {
		if err := r.session.NavigateTo(ctx, sc.URL); err != nil {
			return fail(fmt.Errorf("reset to start url: %w", err))
		}
	}

	p := newPage(sc.Pages[c.Page])
	if err := r.session.AttachToPage(ctx, p); err != nil {
		return fail(fmt.Errorf("attach page %q: %w", c.Page, err))
	}

	for i, st := range c.Steps {
		stepStart := time.Now()
		err := r.step(ctx, p, st)
		rs := reporting.Step{
			Index:    i,
			Action:   string(st.Action),
			Element:  st.Element,
			Status:   reporting.StatusPassed,
			Duration: time.Since(stepStart),
		}
		if err != nil {
			rs.Status = reporting.StatusFailed
			rs.Error = err.Error()
			rc.Steps = append(rc.Steps, rs)
			return fail(fmt.Errorf("step %d (%s): %w", i+1, st.Action, err))
		}
		rc.Steps = append(rc.Steps, rs)
		logger.Debug("Step passed.", zap.Int("step", i+1), zap.String("action", string(st.Action)), zap.Duration("duration", rs.Duration))
	}

	rc.Duration = time.Since(start)
	logger.Info("Case passed.", zap.Duration("duration", rc.Duration))
	return rc
}

// capture stores a screenshot and the page source on rc. It runs even when
// ctx was cancelled, bounded by its own timeout.
func (r *Runner) capture(ctx context.Context, logger *zap.Logger, rc *reporting.Case) {
	if !r.screenshots || !r.session.IsOpen() {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.captureTimeout)
	defer cancel()

	png, err := r.session.Screenshot(ctx)
	if err != nil {
		logger.Warn("Could not capture screenshot.", zap.Error(err))
	} else {
		rc.Screenshot = png
	}
	src, err := r.session.PageSource(ctx)
	if err != nil {
		logger.Warn("Could not capture page source.", zap.Error(err))
	} else {
		rc.PageSource = src
	}
}

// page is the page object built from a PageSpec.
type page struct {
	session.BasePage
	spec    PageSpec
	handles map[string]*element.Handle
}

func newPage(spec PageSpec) *page {
	return &page{
		BasePage: session.BasePage{PageTimeout: spec.Timeout},
		spec:     spec,
		handles:  make(map[string]*element.Handle),
	}
}

// element returns the handle for a named element, created on first use.
// Handles are shared across steps so a stale reference heals once.
func (p *page) element(name string) (*element.Handle, error) {
	if h, ok := p.handles[name]; ok {
		return h, nil
	}
	spec, ok := p.spec.Elements[name]
	if !ok {
		return nil, fmt.Errorf("unknown element %q", name)
	}
	loc, err := spec.Locator()
	if err != nil {
		return nil, fmt.Errorf("element %q: %w", name, err)
	}

	var h *element.Handle
	if spec.Within != "" {
		parent, err := p.element(spec.Within)
		if err != nil {
			return nil, err
		}
		h = parent.FindChild(loc)
	} else {
		if p.Doc == nil {
			return nil, errors.New("page is not attached")
		}
		h = p.Doc.Find(loc)
	}
	p.handles[name] = h
	return h, nil
}
