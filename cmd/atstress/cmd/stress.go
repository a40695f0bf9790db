package cmd

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/activetigger/atstress/internal/testsuite"
	"github.com/activetigger/atstress/internal/testsuite/configuration"
)

// Run one load test: launch the workers, keep their training jobs running for the requested duration, then
// tear everything down. Exits non-zero if no training job could be started.
func stressCmd(app *testsuite.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Run concurrent users, each training a model in its own project, then clean up.",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, app)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			rep, err := app.Stress(ctx)
			if err != nil {
				return err
			}
			if !rep.Succeeded() {
				return errors.Errorf("no training job started on %d workers", len(rep.Workers))
			}
			return nil
		},
	}

	d := configuration.Default()
	s := d.Stress
	cmd.Flags().Int("workers", s.Workers, "number of concurrent simulated users")
	cmd.Flags().Duration("duration", s.Duration, "total duration of the run, setup included")
	cmd.Flags().Duration("readinessTimeout", s.ReadinessTimeout, "time allowed for all workers to finish their setup")
	cmd.Flags().Duration("joinTimeout", s.JoinTimeout, "time allowed for each worker to stop")
	cmd.Flags().Duration("projectReadyTimeout", s.ProjectReadyTimeout, "time allowed for a new project to become visible")
	cmd.Flags().Duration("jobStartTimeout", s.JobStartTimeout, "time allowed for a training job to be reported running")
	cmd.Flags().Duration("pollInterval", s.PollInterval, "interval between two checks of the service state")
	cmd.Flags().Float64("launchRate", s.LaunchRate, "workers launched per second, 0 launches all at once")
	cmd.Flags().Uint("cleanupAttempts", s.CleanupAttempts, "attempts of each cleanup step")
	cmd.Flags().Duration("cleanupDelay", s.CleanupDelay, "delay between two attempts of a cleanup step")
	cmd.Flags().Duration("cleanupTimeout", s.CleanupTimeout, "timeout of a single cleanup attempt")
	cmd.Flags().String("userPrefix", s.UserPrefix, "prefix of the generated account names")
	cmd.Flags().String("userPassword", s.UserPassword, "password of the generated accounts")
	cmd.Flags().String("userRole", string(s.UserRole), "role of the generated accounts: manager, annotator or root")
	cmd.Flags().String("baseModel", s.BaseModel, "base model of the training jobs")
	cmd.Flags().String("dataset", s.Dataset, "dataset file (.csv, .json, .yaml), a synthetic dataset is used if empty")
	cmd.Flags().Int("syntheticRows", s.SyntheticRows, "rows of the synthetic dataset")
	cmd.Flags().String("projectPrefix", s.Project.NamePrefix, "prefix of the generated project names")
	cmd.Flags().Int("trainSize", s.Project.TrainSize, "train set size of each project")
	cmd.Flags().Int("testSize", s.Project.TestSize, "test set size of each project")
	cmd.Flags().String("language", s.Project.Language, "language of each project")
	cmd.Flags().Bool("forceLabel", s.Project.ForceLabel, "create a scheme from the dataset's label column")
	cmd.Flags().String("report", s.Report, "save the report to this .yaml or .json file")
	cmd.Flags().Uint16("metricsPort", d.MetricsPort, "port of the Prometheus metrics endpoint, 0 disables it")
	bindFlags(cmd.Flags(), map[string]string{
		"workers":             "stress.workers",
		"duration":            "stress.duration",
		"readinessTimeout":    "stress.readinessTimeout",
		"joinTimeout":         "stress.joinTimeout",
		"projectReadyTimeout": "stress.projectReadyTimeout",
		"jobStartTimeout":     "stress.jobStartTimeout",
		"pollInterval":        "stress.pollInterval",
		"launchRate":          "stress.launchRate",
		"cleanupAttempts":     "stress.cleanupAttempts",
		"cleanupDelay":        "stress.cleanupDelay",
		"cleanupTimeout":      "stress.cleanupTimeout",
		"userPrefix":          "stress.userPrefix",
		"userPassword":        "stress.userPassword",
		"userRole":            "stress.userRole",
		"baseModel":           "stress.baseModel",
		"dataset":             "stress.dataset",
		"syntheticRows":       "stress.syntheticRows",
		"projectPrefix":       "stress.project.namePrefix",
		"trainSize":           "stress.project.trainSize",
		"testSize":            "stress.project.testSize",
		"language":            "stress.project.language",
		"forceLabel":          "stress.project.forceLabel",
		"report":              "stress.report",
		"metricsPort":         "metricsPort",
	})

	return cmd
}
