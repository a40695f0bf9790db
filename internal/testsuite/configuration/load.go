package configuration

import (
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	commonconfig "github.com/activetigger/atstress/internal/common/config"
	"github.com/activetigger/atstress/pkg/client"
)

// SetDefaults registers the default of every key with v. Keys only set through environment variables are not
// seen by viper.Unmarshal unless a default exists.
func SetDefaults(v *viper.Viper) {
	d := Default()
	s := d.Stress
	v.SetDefault("metricsPort", d.MetricsPort)
	v.SetDefault("stress.workers", s.Workers)
	v.SetDefault("stress.duration", s.Duration)
	v.SetDefault("stress.readinessTimeout", s.ReadinessTimeout)
	v.SetDefault("stress.joinTimeout", s.JoinTimeout)
	v.SetDefault("stress.projectReadyTimeout", s.ProjectReadyTimeout)
	v.SetDefault("stress.jobStartTimeout", s.JobStartTimeout)
	v.SetDefault("stress.pollInterval", s.PollInterval)
	v.SetDefault("stress.launchRate", s.LaunchRate)
	v.SetDefault("stress.cleanupAttempts", s.CleanupAttempts)
	v.SetDefault("stress.cleanupDelay", s.CleanupDelay)
	v.SetDefault("stress.cleanupTimeout", s.CleanupTimeout)
	v.SetDefault("stress.userPrefix", s.UserPrefix)
	v.SetDefault("stress.userPassword", s.UserPassword)
	v.SetDefault("stress.userRole", string(s.UserRole))
	v.SetDefault("stress.baseModel", s.BaseModel)
	v.SetDefault("stress.dataset", s.Dataset)
	v.SetDefault("stress.syntheticRows", s.SyntheticRows)
	v.SetDefault("stress.columns.id", s.Columns.Id)
	v.SetDefault("stress.columns.text", s.Columns.Text)
	v.SetDefault("stress.columns.label", s.Columns.Label)
	v.SetDefault("stress.project.namePrefix", s.Project.NamePrefix)
	v.SetDefault("stress.project.trainSize", s.Project.TrainSize)
	v.SetDefault("stress.project.testSize", s.Project.TestSize)
	v.SetDefault("stress.project.language", s.Project.Language)
	v.SetDefault("stress.project.forceLabel", s.Project.ForceLabel)
	v.SetDefault("stress.report", s.Report)
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	config := Default()
	if err := v.Unmarshal(&config, commonconfig.CustomHooks(commonconfig.StringParserHook(client.ParseRole))); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := commonconfig.Validate(config); err != nil {
		return nil, err
	}
	return &config, nil
}
