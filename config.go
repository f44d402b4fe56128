package laurel

import (
	"errors"
	"time"

	"github.com/mongodb/grip"
)

// StorageKind selects the persistence backend for harness data.
type StorageKind string

const (
	StorageFile  StorageKind = "file"
	StorageMongo StorageKind = "mongodb"
)

// Configuration defines the runtime settings for the laurel service.
type Configuration struct {
	StorageType StorageKind
	DataDir     string

	MongoDBURI         string
	DatabaseName       string
	MongoDBDialTimeout time.Duration

	NumWorkers int

	// DispatchTimeout bounds each configuration dispatched to a client.
	DispatchTimeout time.Duration
	// ClientTTL is the heartbeat-silence window after which a client is
	// evicted from the registry.
	ClientTTL time.Duration
	// EventBuffer is the per-subscriber event channel depth.
	EventBuffer int

	// ExportBucket, when set, enables archiving run exports to a local
	// pail bucket rooted at this path.
	ExportBucket       string
	ExportBucketPrefix string
}

func (c *Configuration) Validate() error {
	catcher := grip.NewBasicCatcher()

	if c.StorageType == "" {
		c.StorageType = StorageFile
	}
	if c.StorageType != StorageFile && c.StorageType != StorageMongo {
		catcher.Add(errors.New("storage type must be 'file' or 'mongodb'"))
	}
	if c.StorageType == StorageFile && c.DataDir == "" {
		catcher.Add(errors.New("must specify a data directory for file storage"))
	}
	if c.StorageType == StorageMongo && c.MongoDBURI == "" {
		catcher.Add(errors.New("must specify a mongodb url"))
	}
	if c.DatabaseName == "" {
		c.DatabaseName = "laurel"
	}
	if c.MongoDBDialTimeout <= 0 {
		c.MongoDBDialTimeout = 2 * time.Second
	}
	if c.NumWorkers < 1 {
		catcher.Add(errors.New("must specify a valid number of workers"))
	}
	if c.DispatchTimeout <= 0 {
		c.DispatchTimeout = DefaultDispatchTimeout
	}
	if c.ClientTTL <= 0 {
		c.ClientTTL = DefaultClientTTL
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 128
	}

	return catcher.Resolve()
}
