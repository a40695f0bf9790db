package testsuite

import (
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/utils/clock"

	"github.com/activetigger/atstress/internal/common/runcontext"
	"github.com/activetigger/atstress/internal/common/stresserrors"
	"github.com/activetigger/atstress/internal/common/util"
	"github.com/activetigger/atstress/internal/monitor"
	"github.com/activetigger/atstress/internal/testsuite/build"
	"github.com/activetigger/atstress/internal/testsuite/configuration"
	"github.com/activetigger/atstress/internal/testsuite/dataset"
	"github.com/activetigger/atstress/internal/testsuite/lifecycle"
	"github.com/activetigger/atstress/internal/testsuite/metrics"
	"github.com/activetigger/atstress/internal/testsuite/orchestrator"
	"github.com/activetigger/atstress/internal/testsuite/poll"
	"github.com/activetigger/atstress/internal/testsuite/report"
	"github.com/activetigger/atstress/pkg/client"
)

type App struct {
	// Parameters passed to the CLI by the user.
	Params *Params
	// In feeds keyboard input to the interactive monitor. Defaults to standard in.
	In io.Reader
	// Out is used to write the output. Defaults to standard out,
	// but can be overridden in tests to make assertions on the applications's output.
	Out io.Writer
	// Source of randomness used for account and project names. Tests can use a mocked random source in order to
	// provide deterministic testing behavior.
	Random io.Reader
	// Clock used for every wait. Tests use a fake clock.
	Clock clock.Clock
	// Connect creates the client used to reach the service. Defaults to an HTTP client.
	Connect func(details *client.ApiConnectionDetails) (client.Api, error)
	// Registry receives the run metrics. Defaults to a fresh registry per run.
	Registry *prometheus.Registry
}

// Params struct holds all user-customizable parameters.
// Using a single struct for all CLI commands ensures that all flags are distinct
// and that they can be provided either dynamically on a command line, or
// statically in a config file that's reused between command runs.
type Params struct {
	ApiConnectionDetails *client.ApiConnectionDetails
	Config               configuration.Config
}

// New instantiates an App with default parameters, including standard output,
// cryptographically secure random source and an HTTP client.
func New() *App {
	return &App{
		Params: &Params{
			ApiConnectionDetails: &client.ApiConnectionDetails{},
			Config:               configuration.Default(),
		},
		In:     os.Stdin,
		Out:    os.Stdout,
		Random: rand.Reader,
		Clock:  clock.RealClock{},
		Connect: func(details *client.ApiConnectionDetails) (client.Api, error) {
			return client.NewHttpClient(details)
		},
	}
}

// Version prints build information (e.g., current git commit) to the app output.
func (a *App) Version() error {
	w := tabwriter.NewWriter(a.Out, 1, 1, 1, ' ', 0)
	defer w.Flush()
	fmt.Fprintf(w, "Version:\t%s\n", build.ReleaseVersion)
	fmt.Fprintf(w, "Commit:\t%s\n", build.GitCommit)
	fmt.Fprintf(w, "Go version:\t%s\n", build.GoVersion)
	fmt.Fprintf(w, "Built:\t%s\n", build.BuildTime)
	return nil
}

func (a *App) api() (client.Api, error) {
	if a.Params.ApiConnectionDetails == nil || a.Params.ApiConnectionDetails.Url == "" {
		return nil, errors.WithStack(&stresserrors.ErrInvalidArgument{
			Name:    "url",
			Value:   "",
			Message: "not provided",
		})
	}
	return a.Connect(a.Params.ApiConnectionDetails)
}

// adminSession connects to the service and authenticates with the configured credentials.
func (a *App) adminSession(ctx *runcontext.Context) (client.Api, *client.Session, error) {
	api, err := a.api()
	if err != nil {
		return nil, nil, err
	}
	session, err := client.Login(ctx, api, a.Params.ApiConnectionDetails)
	if err != nil {
		return nil, nil, err
	}
	return api, session, nil
}

func (a *App) manager(api client.Api) *lifecycle.Manager {
	config := a.Params.Config.Stress
	return lifecycle.NewManager(
		api,
		util.NewNameGenerator(a.Random),
		poll.Poller{Interval: config.PollInterval, Clock: a.Clock},
		config.CleanupTimeout,
	)
}

// check prints the result of an assertion as an OK or FAIL line and turns a failure into an error.
func (a *App) check(ok bool, format string, args ...interface{}) error {
	message := fmt.Sprintf(format, args...)
	if ok {
		fmt.Fprintf(a.Out, "OK: %s\n", message)
		return nil
	}
	fmt.Fprintf(a.Out, "FAIL: %s\n", message)
	return errors.Errorf("check failed: %s", message)
}

// Stress runs one load test and prints its report. The returned report is nil only if the run could not start;
// a run in which no training started is reported through the report's exit code, not as an error.
func (a *App) Stress(ctx *runcontext.Context) (*report.Report, error) {
	config := a.Params.Config.Stress
	if err := config.Orchestrator().Validate(); err != nil {
		return nil, err
	}
	fmt.Fprintf(a.Out, "=== Stress run: %d workers, %s ===\n\n", config.Workers, config.Duration)

	api, admin, err := a.adminSession(ctx)
	if err != nil {
		return nil, err
	}
	ping := api.Ping(ctx)
	if err := a.check(ping.Available, "API is reachable"); err != nil {
		return nil, err
	}
	fmt.Fprintf(a.Out, "  Response time: %d ms\n\n", ping.RoundTrip.Milliseconds())

	data, err := config.LoadDataset()
	if err != nil {
		return nil, err
	}
	ctx.Log.Infof("loaded dataset with %d rows", data.Len())

	registry := a.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m, err := metrics.New(registry)
	if err != nil {
		return nil, err
	}
	o, err := orchestrator.New(
		config.Orchestrator(),
		api,
		a.manager(api),
		admin,
		config.SpecFactory(util.NewNameGenerator(a.Random), data),
		orchestrator.WithClock(a.Clock),
		orchestrator.WithMetrics(m),
	)
	if err != nil {
		return nil, err
	}

	// The metrics endpoint is best effort: failing to serve it never cuts the run short.
	g, groupCtx := runcontext.ErrGroup(ctx)
	serveCtx, stopServing := runcontext.WithCancel(groupCtx)
	var rep *report.Report
	g.Go(func() error {
		if err := metrics.Serve(serveCtx, a.Params.Config.MetricsPort, prometheus.Gatherers{registry, prometheus.DefaultGatherer}); err != nil {
			ctx.Log.WithError(err).Warnf("metrics endpoint on port %d failed, continuing without it", a.Params.Config.MetricsPort)
		}
		return nil
	})
	g.Go(func() error {
		defer stopServing()
		var err error
		rep, err = o.Run(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fmt.Fprintln(a.Out)
	if err := rep.Print(a.Out); err != nil {
		return rep, err
	}
	if config.Report != "" {
		if err := rep.Write(config.Report); err != nil {
			return rep, err
		}
		fmt.Fprintf(a.Out, "Report written to %s\n", config.Report)
	}
	// The outcome is carried by the report's exit code.
	_ = a.check(rep.Succeeded(), "At least one training was started successfully.")
	return rep, nil
}

// Monitor charts the round trip of a ping sent every interval until the user quits or ctx is cancelled.
func (a *App) Monitor(ctx *runcontext.Context, interval time.Duration) error {
	api, err := a.api()
	if err != nil {
		return err
	}
	_, err = monitor.Run(ctx, api, interval, a.In, a.Out)
	return err
}

func (a *App) loadDataset() (*dataset.Dataset, error) {
	return a.Params.Config.Stress.LoadDataset()
}
