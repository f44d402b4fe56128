package operations

import (
	"context"

	"github.com/mongodb/grip"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
	laurel "github.com/unamentis/laurel"
	"github.com/unamentis/laurel/harness"
	"github.com/unamentis/laurel/model"
	"github.com/unamentis/laurel/rest"
	"github.com/unamentis/laurel/storage"
)

// Service returns the sub-command that starts the latency harness api
// service.
func Service() cli.Command {
	return cli.Command{
		Name:  "service",
		Usage: "run the latency harness api service",
		Flags: mergeFlags(baseFlags(), storageFlags(), serviceFlags()),
		Action: func(c *cli.Context) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			conf := configFromFlags(c)
			env, err := laurel.NewEnvironment(ctx, conf)
			if err != nil {
				return errors.Wrap(err, "problem configuring environment")
			}
			defer func() {
				grip.Warning(errors.Wrap(env.Close(ctx), "problem closing environment"))
			}()

			store, err := storage.NewStorage(ctx, env)
			if err != nil {
				return errors.Wrap(err, "problem configuring storage")
			}
			if err = seedBuiltinSuites(ctx, store); err != nil {
				return errors.Wrap(err, "problem seeding built-in suites")
			}

			orch := harness.NewOrchestrator(env, store,
				harness.NewClientRegistry(conf.ClientTTL),
				harness.NewHTTPTransport(),
				harness.NewEventBus(conf.EventBuffer))

			service := &rest.Service{
				Port:         c.Int(portFlag),
				Environment:  env,
				Storage:      store,
				Orchestrator: orch,
			}
			if err := service.Validate(); err != nil {
				return errors.Wrap(err, "problem validating service")
			}

			grip.Noticef("starting laurel service on :%d", c.Int(portFlag))
			return errors.Wrap(service.Start(ctx), "problem running service")
		},
	}
}

// seedBuiltinSuites writes the built-in suites on first startup; an
// already-stored definition is left untouched so operators can inspect
// it but never edit it through the api.
func seedBuiltinSuites(ctx context.Context, store storage.Storage) error {
	catcher := grip.NewBasicCatcher()
	for _, suite := range []*model.TestSuiteDefinition{
		model.QuickValidationSuite(),
		model.ProviderComparisonSuite(),
	} {
		if _, err := store.GetSuite(ctx, suite.ID); err == nil {
			continue
		} else if !storage.IsNotFound(err) {
			catcher.Add(err)
			continue
		}
		catcher.Add(store.SaveSuite(ctx, suite))
	}
	return catcher.Resolve()
}
