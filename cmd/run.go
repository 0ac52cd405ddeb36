// File: cmd/run.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-ui/internal/browser/cdpdriver"
	"github.com/xkilldash9x/scalpel-ui/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-ui/internal/browser/roddriver"
	"github.com/xkilldash9x/scalpel-ui/internal/browser/session"
	"github.com/xkilldash9x/scalpel-ui/internal/config"
	"github.com/xkilldash9x/scalpel-ui/internal/observability"
	"github.com/xkilldash9x/scalpel-ui/internal/reporting"
	"github.com/xkilldash9x/scalpel-ui/internal/scenario"
)

// launcherFactory returns the launcher for a browser.driver value. Tests
// inject mocks through it.
type launcherFactory func(name string, logger *zap.Logger) (driver.Launcher, error)

func defaultLaunchers(name string, logger *zap.Logger) (driver.Launcher, error) {
	switch strings.ToLower(name) {
	case "chromedp", "":
		return cdpdriver.NewLauncher(logger), nil
	case "rod":
		return roddriver.NewLauncher(logger), nil
	}
	return nil, fmt.Errorf("unknown browser driver %q", name)
}

// reportWriteTimeout bounds report writing after the run, which happens even
// when the run was interrupted.
const reportWriteTimeout = 30 * time.Second

// newRunCmd creates and configures the `run` command.
func newRunCmd(launchers launcherFactory) *cobra.Command {
	var (
		headless    bool
		driverName  string
		reportDir   string
		formats     []string
		screenshots bool
	)

	runCmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run a scenario and write its reports",
		Long: `Opens one browser session on the scenario URL, executes every case in order
and writes the configured reports. The exit status is non-zero when any case fails.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			// Flags override the config file and environment.
			flags := cmd.Flags()
			if flags.Changed("headless") {
				cfg.Browser.Headless = headless
			}
			if flags.Changed("driver") {
				cfg.Browser.Driver = driverName
			}
			if flags.Changed("report-dir") {
				if cfg.Report.Dir, err = homedir.Expand(reportDir); err != nil {
					return err
				}
			}
			if flags.Changed("format") {
				cfg.Report.Formats = formats
			}
			if flags.Changed("screenshots") {
				cfg.Report.Screenshots = screenshots
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			return runScenario(ctx, observability.GetLogger(), cfg, args[0], launchers, cmd.OutOrStdout())
		},
	}

	runCmd.Flags().BoolVar(&headless, "headless", true, "Run the browser without a window")
	runCmd.Flags().StringVar(&driverName, "driver", "chromedp", "Browser transport: chromedp or rod")
	runCmd.Flags().StringVar(&reportDir, "report-dir", "", "Directory for reports and failure artifacts")
	runCmd.Flags().StringSliceVarP(&formats, "format", "f", nil, "Report formats (json, junit)")
	runCmd.Flags().BoolVar(&screenshots, "screenshots", true, "Capture a screenshot and page source of failed cases")

	return runCmd
}

// runScenario contains the core, testable logic of the run command.
func runScenario(
	ctx context.Context,
	logger *zap.Logger,
	cfg *config.Config,
	path string,
	launchers launcherFactory,
	out io.Writer,
) error {
	sc, err := scenario.Load(path)
	if err != nil {
		return err
	}

	launcher, err := launchers(cfg.Browser.Driver, logger)
	if err != nil {
		return err
	}
	s, err := session.New(cfg, launcher, logger)
	if err != nil {
		return err
	}

	runner := scenario.NewRunner(s, logger,
		scenario.WithScreenshots(cfg.Report.Screenshots),
		scenario.WithDriverName(cfg.Browser.Driver),
	)
	suite := runner.Run(ctx, sc)

	var paths []string
	if len(cfg.Report.Formats) > 0 {
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportWriteTimeout)
		defer cancel()
		paths, err = reporting.WriteAll(writeCtx, cfg.Report.Dir, suite, cfg.Report.Formats)
		if err != nil {
			return fmt.Errorf("failed to write reports: %w", err)
		}
	}

	printSummary(out, suite, paths)

	if suite.Error != "" {
		return fmt.Errorf("scenario %q did not run: %s", suite.Name, suite.Error)
	}
	if failed := suite.Failed(); failed > 0 {
		return fmt.Errorf("%d of %d cases failed", failed, len(suite.Cases))
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run interrupted: %w", err)
	}
	return nil
}

func printSummary(out io.Writer, suite *reporting.Suite, paths []string) {
	counts := map[reporting.Status]int{}
	for _, c := range suite.Cases {
		counts[c.Status]++
		mark := "ok  "
		switch c.Status {
		case reporting.StatusFailed:
			mark = "FAIL"
		case reporting.StatusSkipped:
			mark = "SKIP"
		}
		fmt.Fprintf(out, "%s %s (%s)\n", mark, c.Name, c.Duration.Round(time.Millisecond))
		if c.Error != "" && c.Status == reporting.StatusFailed {
			fmt.Fprintf(out, "     %s\n", c.Error)
		}
	}
	fmt.Fprintf(out, "%d passed, %d failed, %d skipped in %s\n",
		counts[reporting.StatusPassed], counts[reporting.StatusFailed], counts[reporting.StatusSkipped],
		suite.Duration.Round(time.Millisecond))
	for _, p := range paths {
		fmt.Fprintf(out, "report: %s\n", p)
	}
}
