package laurel

import (
	"context"
	"sync"
	"time"

	"github.com/mongodb/amboy"
	"github.com/mongodb/amboy/queue"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Environment objects provide access to shared configuration and state.
// Environments are constructed explicitly by the process entry point and
// injected into the components that need them; there is no package-level
// instance.
type Environment interface {
	GetConf() *Configuration

	// GetQueue retrieves the application's shared queue, used for
	// background run dispatch jobs.
	GetQueue() amboy.Queue

	// GetClient and GetDB return the shared mongodb handles. Both are
	// nil when the environment is configured for file storage.
	GetClient() *mongo.Client
	GetDB() *mongo.Database

	// Context returns a cancelable context rooted at the environment's
	// lifetime.
	Context() (context.Context, context.CancelFunc)

	Close(context.Context) error
}

// NewEnvironment constructs and starts an environment from the given
// configuration. The configuration is validated, the local queue is
// started, and, for mongodb storage, the database connection is dialed
// and verified.
func NewEnvironment(ctx context.Context, conf *Configuration) (Environment, error) {
	if conf == nil {
		return nil, errors.New("cannot construct an environment with a nil configuration")
	}
	if err := conf.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	env := &envState{conf: conf}
	env.ctx, env.cancel = context.WithCancel(ctx)

	env.queue = queue.NewLocalLimitedSize(conf.NumWorkers, 1024)
	if err := env.queue.Start(env.ctx); err != nil {
		return nil, errors.Wrap(err, "problem starting local queue")
	}
	grip.Info(message.Fields{
		"message": "configured local queue",
		"workers": conf.NumWorkers,
		"name":    QueueName,
	})

	if conf.StorageType == StorageMongo {
		dialCtx, cancel := context.WithTimeout(env.ctx, conf.MongoDBDialTimeout)
		defer cancel()

		client, err := mongo.Connect(dialCtx, options.Client().ApplyURI(conf.MongoDBURI))
		if err != nil {
			return nil, errors.Wrapf(err, "could not connect to db %s", conf.MongoDBURI)
		}
		if err = client.Ping(dialCtx, nil); err != nil {
			return nil, errors.Wrapf(err, "could not reach db %s", conf.MongoDBURI)
		}
		env.client = client
	}

	return env, nil
}

type envState struct {
	conf   *Configuration
	queue  amboy.Queue
	client *mongo.Client
	ctx    context.Context
	cancel context.CancelFunc
	mutex  sync.RWMutex
}

func (e *envState) GetConf() *Configuration {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	return e.conf
}

func (e *envState) GetQueue() amboy.Queue {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	return e.queue
}

func (e *envState) GetClient() *mongo.Client {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	return e.client
}

func (e *envState) GetDB() *mongo.Database {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	if e.client == nil {
		return nil
	}
	return e.client.Database(e.conf.DatabaseName)
}

func (e *envState) Context() (context.Context, context.CancelFunc) {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	return context.WithTimeout(e.ctx, 30*time.Second)
}

func (e *envState) Close(ctx context.Context) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	catcher := grip.NewBasicCatcher()
	if e.client != nil {
		catcher.Add(errors.Wrap(e.client.Disconnect(ctx), "problem disconnecting from db"))
		e.client = nil
	}
	e.cancel()

	return catcher.Resolve()
}
