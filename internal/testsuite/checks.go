package testsuite

import (
	"fmt"
	"text/tabwriter"

	"github.com/activetigger/atstress/internal/common/runcontext"
	"github.com/activetigger/atstress/internal/testsuite/lifecycle"
	"github.com/activetigger/atstress/pkg/client"
)

// CheckPing pings the service once and prints the result.
func (a *App) CheckPing(ctx *runcontext.Context) error {
	api, err := a.api()
	if err != nil {
		return err
	}
	ping := api.Ping(ctx)
	w := tabwriter.NewWriter(a.Out, 1, 1, 1, ' ', 0)
	fmt.Fprintf(w, "Timestamp:\t%s\n", ping.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Available:\t%t\n", ping.Available)
	fmt.Fprintf(w, "Status:\t%d\n", ping.StatusCode)
	fmt.Fprintf(w, "Response time:\t%d ms\n", ping.RoundTrip.Milliseconds())
	if err := w.Flush(); err != nil {
		return err
	}
	return a.check(ping.Available, "API is reachable")
}

// CheckProject creates a project, verifies that it is listed with the requested train size and deletes it.
func (a *App) CheckProject(ctx *runcontext.Context) error {
	api, admin, err := a.adminSession(ctx)
	if err != nil {
		return err
	}
	data, err := a.loadDataset()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "Loaded dataset: %d rows\n", data.Len())
	config := a.Params.Config.Stress.ProjectConfig(data)
	return a.manager(api).WithProject(ctx, admin, config, func(project *lifecycle.Project) error {
		fmt.Fprintf(a.Out, "  Project slug: %s\n", project.Slug)
		slugs, err := api.ListProjects(ctx, admin)
		if err != nil {
			return err
		}
		if err := a.check(slugs[project.Slug], "project %s found in project list", project.Slug); err != nil {
			return err
		}
		state, err := api.GetProjectState(ctx, admin, project.Slug)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "  Train set size: %d\n", state.Params.TrainSize)
		return a.check(
			state.Params.TrainSize == config.Request.TrainSize,
			"train set size is %d, expected %d", state.Params.TrainSize, config.Request.TrainSize,
		)
	})
}

// CheckTraining creates a labelled project, starts a training job on its first scheme, waits for the job to run
// and stops it.
func (a *App) CheckTraining(ctx *runcontext.Context) error {
	api, admin, err := a.adminSession(ctx)
	if err != nil {
		return err
	}
	data, err := a.loadDataset()
	if err != nil {
		return err
	}
	stress := a.Params.Config.Stress
	config := stress.ProjectConfig(data)
	config.Request.ForceLabel = true
	manager := a.manager(api)
	return manager.WithProject(ctx, admin, config, func(project *lifecycle.Project) error {
		fmt.Fprintf(a.Out, "  Project slug: %s\n", project.Slug)
		schemes, err := api.ListSchemes(ctx, admin, project.Slug)
		if err != nil {
			return err
		}
		if err := a.check(len(schemes) > 0, "project has at least one scheme"); err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "  Starting training on scheme %s with %s\n", schemes[0], stress.BaseModel)
		err = api.StartTraining(ctx, admin, project.Slug, client.TrainingRequest{
			Scheme:     schemes[0],
			Name:       "check-model",
			BaseModel:  stress.BaseModel,
			Parameters: stress.TrainingParameters,
		})
		if err != nil {
			return err
		}
		jobs, err := manager.WaitForTraining(ctx, admin, project.Slug, stress.JobStartTimeout)
		if err := a.check(err == nil, "model training detected"); err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "  Training models: %v\n", jobs.TrainingNames())
		if err := manager.StopJob(ctx, admin, project.Slug); err != nil {
			return err
		}
		return a.check(true, "model training start/stop lifecycle successful")
	})
}

// CheckUser creates a project and an account, verifies that the account is listed, then grants and revokes its
// access to the project.
func (a *App) CheckUser(ctx *runcontext.Context) error {
	api, admin, err := a.adminSession(ctx)
	if err != nil {
		return err
	}
	data, err := a.loadDataset()
	if err != nil {
		return err
	}
	stress := a.Params.Config.Stress
	manager := a.manager(api)
	account := lifecycle.AccountConfig{
		Prefix:   stress.UserPrefix + "-check",
		Password: stress.UserPassword,
		Role:     stress.UserRole,
	}
	return manager.WithProject(ctx, admin, stress.ProjectConfig(data), func(project *lifecycle.Project) error {
		return manager.WithAccount(ctx, admin, account, func(username string) error {
			fmt.Fprintf(a.Out, "  Project slug: %s\n", project.Slug)
			fmt.Fprintf(a.Out, "  Username: %s\n", username)
			users, err := api.ListUsers(ctx, admin)
			if err != nil {
				return err
			}
			if err := a.check(contains(users, username), "user found in user list"); err != nil {
				return err
			}
			if err := api.AddUserToProject(ctx, admin, username, project.Slug, stress.UserRole); err != nil {
				return err
			}
			fmt.Fprintf(a.Out, "  Granted %s access to %s\n", username, project.Slug)
			if err := api.RemoveUserFromProject(ctx, admin, username, project.Slug); err != nil {
				return err
			}
			fmt.Fprintf(a.Out, "  Revoked %s access to %s\n", username, project.Slug)
			return a.check(true, "user creation and project access lifecycle successful")
		})
	})
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
