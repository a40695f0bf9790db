package configuration

import (
	"time"

	"github.com/activetigger/atstress/internal/testsuite/orchestrator"
	"github.com/activetigger/atstress/pkg/client"
)

type ColumnsConfig struct {
	Id      string   `validate:"required"`
	Text    []string `validate:"required,min=1,dive,required"`
	Label   string
	Context []string
}

type ProjectConfig struct {
	NamePrefix string `validate:"required"`
	TrainSize  int    `validate:"gte=1"`
	TestSize   int    `validate:"gte=0"`
	Language   string `validate:"required"`
	ForceLabel bool
}

type StressConfig struct {
	Workers             int           `validate:"gte=1"`
	Duration            time.Duration `validate:"gte=0"`
	ReadinessTimeout    time.Duration `validate:"gte=0"`
	JoinTimeout         time.Duration `validate:"gte=0"`
	ProjectReadyTimeout time.Duration `validate:"gte=0"`
	JobStartTimeout     time.Duration `validate:"gte=0"`
	PollInterval        time.Duration `validate:"gt=0"`
	LaunchRate          float64       `validate:"gte=0"`
	CleanupAttempts     uint          `validate:"gte=1"`
	CleanupDelay        time.Duration `validate:"gte=0"`
	CleanupTimeout      time.Duration `validate:"gt=0"`
	// Account names are <UserPrefix><index>-<random suffix>.
	UserPrefix   string `validate:"required"`
	UserPassword string `validate:"required"`
	UserRole     client.Role
	BaseModel    string `validate:"required"`
	// Extra training parameters passed as is.
	TrainingParameters map[string]interface{}
	// Path of a .csv, .json or .yaml dataset. When empty a synthetic dataset is generated.
	Dataset string
	// Rows of the synthetic dataset.
	SyntheticRows int `validate:"gte=0"`
	Columns       ColumnsConfig
	Project       ProjectConfig
	// Where to save the report; .yaml, .yml or .json. Not saved when empty.
	Report string
}

type Config struct {
	Stress      StressConfig
	MetricsPort uint16
}

// Default returns the configuration used for any key that is not set.
func Default() Config {
	return Config{
		Stress: StressConfig{
			Workers:             5,
			Duration:            10 * time.Minute,
			ReadinessTimeout:    3 * time.Minute,
			JoinTimeout:         30 * time.Second,
			ProjectReadyTimeout: 2 * time.Minute,
			JobStartTimeout:     time.Minute,
			PollInterval:        3 * time.Second,
			CleanupAttempts:     3,
			CleanupDelay:        time.Second,
			CleanupTimeout:      30 * time.Second,
			UserPrefix:          "stress",
			UserPassword:        "Stresstest1!",
			UserRole:            client.RoleManager,
			BaseModel:           "camembert/camembert-base",
			SyntheticRows:       1000,
			Columns: ColumnsConfig{
				Id:    "id",
				Text:  []string{"text"},
				Label: "label",
			},
			Project: ProjectConfig{
				NamePrefix: "stress",
				TrainSize:  500,
				TestSize:   50,
				Language:   "fr",
				ForceLabel: true,
			},
		},
	}
}

func (c StressConfig) Orchestrator() orchestrator.Config {
	return orchestrator.Config{
		Workers:          c.Workers,
		Duration:         c.Duration,
		ReadinessTimeout: c.ReadinessTimeout,
		JoinTimeout:      c.JoinTimeout,
		LaunchRate:       c.LaunchRate,
		CleanupAttempts:  c.CleanupAttempts,
		CleanupDelay:     c.CleanupDelay,
		CleanupTimeout:   c.CleanupTimeout,
	}
}

func (c ColumnsConfig) Client() client.Columns {
	return client.Columns{
		Id:      c.Id,
		Text:    append([]string(nil), c.Text...),
		Label:   c.Label,
		Context: append([]string(nil), c.Context...),
	}
}
