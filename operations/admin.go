package operations

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli"
	laurel "github.com/unamentis/laurel"
	"github.com/unamentis/laurel/model"
	"github.com/unamentis/laurel/storage"
	yaml "gopkg.in/yaml.v2"
)

// Admin returns the sub-command for inspecting and seeding harness
// data without going through the api service.
func Admin() cli.Command {
	return cli.Command{
		Name:  "admin",
		Usage: "manage suites, runs, and baselines directly against storage",
		Subcommands: []cli.Command{
			loadSuite(),
			listSuites(),
			listRuns(),
			listBaselines(),
		},
	}
}

func withStorage(c *cli.Context, op func(context.Context, storage.Storage) error) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conf := configFromFlags(c)
	conf.NumWorkers = 1

	env, err := laurel.NewEnvironment(ctx, conf)
	if err != nil {
		return errors.Wrap(err, "problem configuring environment")
	}
	defer env.Close(ctx)

	store, err := storage.NewStorage(ctx, env)
	if err != nil {
		return errors.Wrap(err, "problem configuring storage")
	}
	return op(ctx, store)
}

func loadSuite() cli.Command {
	return cli.Command{
		Name:  "load-suite",
		Usage: "load a suite definition from a yaml file",
		Flags: mergeFlags(storageFlags(), addPathFlag()),
		Action: func(c *cli.Context) error {
			path := c.String(pathFlagName)
			if path == "" {
				return errors.New("must specify a suite definition file")
			}

			data, err := os.ReadFile(path)
			if err != nil {
				return errors.Wrapf(err, "problem reading '%s'", path)
			}

			suite := &model.TestSuiteDefinition{}
			if err = yaml.Unmarshal(data, suite); err != nil {
				return errors.Wrapf(err, "problem parsing suite definition from '%s'", path)
			}
			if model.IsBuiltinSuite(suite.ID) {
				return errors.Errorf("suite id '%s' is reserved for a built-in suite", suite.ID)
			}
			if err = suite.Validate(); err != nil {
				return errors.Wrap(err, "invalid suite definition")
			}

			return withStorage(c, func(ctx context.Context, store storage.Storage) error {
				if err := store.SaveSuite(ctx, suite); err != nil {
					return errors.Wrapf(err, "problem saving suite '%s'", suite.ID)
				}
				fmt.Printf("loaded suite '%s' with %d total tests\n", suite.ID, suite.TotalTestCount())
				return nil
			})
		},
	}
}

func listSuites() cli.Command {
	return cli.Command{
		Name:  "list-suites",
		Usage: "print the stored suite definitions",
		Flags: storageFlags(),
		Action: func(c *cli.Context) error {
			return withStorage(c, func(ctx context.Context, store storage.Storage) error {
				suites, err := store.ListSuites(ctx)
				if err != nil {
					return errors.Wrap(err, "problem listing suites")
				}
				for _, suite := range suites {
					fmt.Printf("%-24s %-32s tests=%d\n", suite.ID, suite.Name, suite.TotalTestCount())
				}
				return nil
			})
		},
	}
}

func listRuns() cli.Command {
	return cli.Command{
		Name:  "list-runs",
		Usage: "print stored runs, optionally filtered by suite",
		Flags: mergeFlags(storageFlags(), []cli.Flag{
			cli.StringFlag{
				Name:  suiteIDFlag,
				Usage: "only show runs of this suite",
			},
		}),
		Action: func(c *cli.Context) error {
			return withStorage(c, func(ctx context.Context, store storage.Storage) error {
				runs, total, err := store.ListRuns(ctx, storage.RunFilter{SuiteID: c.String(suiteIDFlag)})
				if err != nil {
					return errors.Wrap(err, "problem listing runs")
				}
				for _, run := range runs {
					fmt.Printf("%-16s %-24s %-10s %d/%d started=%s\n",
						run.ID, run.SuiteName, run.Status,
						run.CompletedConfigurations, run.TotalConfigurations,
						run.StartedAt.Format(laurel.ShortDateFormat))
				}
				fmt.Printf("%d total\n", total)
				return nil
			})
		},
	}
}

func listBaselines() cli.Command {
	return cli.Command{
		Name:  "list-baselines",
		Usage: "print stored performance baselines",
		Flags: storageFlags(),
		Action: func(c *cli.Context) error {
			return withStorage(c, func(ctx context.Context, store storage.Storage) error {
				baselines, err := store.ListBaselines(ctx)
				if err != nil {
					return errors.Wrap(err, "problem listing baselines")
				}
				for _, baseline := range baselines {
					marker := " "
					if baseline.IsActive {
						marker = "*"
					}
					fmt.Printf("%s %-20s %-24s run=%s configs=%d\n",
						marker, baseline.ID, baseline.Name, baseline.RunID, len(baseline.ConfigMetrics))
				}
				return nil
			})
		},
	}
}
