package configuration

import (
	"fmt"
	"path/filepath"

	"github.com/activetigger/atstress/internal/common/util"
	"github.com/activetigger/atstress/internal/testsuite/dataset"
	"github.com/activetigger/atstress/internal/testsuite/lifecycle"
	"github.com/activetigger/atstress/internal/testsuite/orchestrator"
	"github.com/activetigger/atstress/internal/testsuite/worker"
	"github.com/activetigger/atstress/pkg/client"
)

var syntheticLabels = []string{"positive", "negative", "neutral"}

// LoadDataset reads the configured dataset, or generates a synthetic one when no path is set, and checks that it
// carries the configured columns.
func (c StressConfig) LoadDataset() (*dataset.Dataset, error) {
	var data *dataset.Dataset
	var err error
	if c.Dataset == "" {
		data, err = dataset.Synthetic(c.SyntheticRows, syntheticLabels)
	} else {
		data, err = dataset.Load(c.Dataset)
	}
	if err != nil {
		return nil, err
	}
	if err := data.Validate(c.Columns.Client()); err != nil {
		return nil, err
	}
	return data, nil
}

// ProjectConfig describes the project created by each worker and by the smoke checks.
func (c StressConfig) ProjectConfig(data *dataset.Dataset) lifecycle.ProjectConfig {
	filename := "dataset.csv"
	if c.Dataset != "" {
		filename = filepath.Base(c.Dataset)
	}
	return lifecycle.ProjectConfig{
		Prefix: c.Project.NamePrefix,
		Request: client.ProjectRequest{
			Csv:        data.Csv(),
			Filename:   filename,
			Columns:    c.Columns.Client(),
			TrainSize:  c.Project.TrainSize,
			TestSize:   c.Project.TestSize,
			Language:   c.Project.Language,
			ForceLabel: c.Project.ForceLabel,
		},
		ReadyTimeout: c.ProjectReadyTimeout,
	}
}

// SpecFactory builds the spec of each worker. Every worker gets a freshly named account and uploads the same
// dataset.
func (c StressConfig) SpecFactory(names *util.NameGenerator, data *dataset.Dataset) orchestrator.SpecFactory {
	project := c.ProjectConfig(data)
	return func(index int) (worker.Spec, error) {
		username, err := names.Name(fmt.Sprintf("%s%d", c.UserPrefix, index))
		if err != nil {
			return worker.Spec{}, err
		}
		return worker.Spec{
			Index:           index,
			Username:        username,
			Password:        c.UserPassword,
			Role:            c.UserRole,
			Project:         project,
			JobName:         fmt.Sprintf("stress-model-%d", index),
			BaseModel:       c.BaseModel,
			Parameters:      c.TrainingParameters,
			JobStartTimeout: c.JobStartTimeout,
		}, nil
	}
}
