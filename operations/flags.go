package operations

import (
	"strings"

	"github.com/urfave/cli"
	laurel "github.com/unamentis/laurel"
)

////////////////////////////////////////////////////////////////////////
//
// Flag Name Constants

const (
	portFlag         = "port"
	numWorkersFlag   = "workers"
	storageFlag      = "storage"
	dataDirFlag      = "dataDir"
	dbURIFlag        = "dbUri"
	dbNameFlag       = "dbName"
	dispatchFlag     = "dispatchTimeout"
	clientTTLFlag    = "clientTTL"
	exportBucketFlag = "exportBucket"

	pathFlagName = "path"
	suiteIDFlag  = "suite"
	clientIDFlag = "client"
	runIDFlag    = "run"
)

////////////////////////////////////////////////////////////////////////
//
// Utility Functions

func joinFlagNames(ids ...string) string { return strings.Join(ids, ", ") }

func mergeFlags(in ...[]cli.Flag) []cli.Flag {
	out := []cli.Flag{}

	for idx := range in {
		out = append(out, in[idx]...)
	}

	return out
}

////////////////////////////////////////////////////////////////////////
//
// Flag Groups

func baseFlags(flags ...cli.Flag) []cli.Flag {
	return append(flags,
		cli.IntFlag{
			Name:   numWorkersFlag,
			Usage:  "specify the number of background worker threads",
			Value:  2,
			EnvVar: "LAUREL_NUM_WORKERS",
		})
}

func storageFlags(flags ...cli.Flag) []cli.Flag {
	return append(flags,
		cli.StringFlag{
			Name:   storageFlag,
			Usage:  "storage backend, either 'file' or 'mongodb'",
			Value:  string(laurel.StorageFile),
			EnvVar: "LAUREL_STORAGE",
		},
		cli.StringFlag{
			Name:   dataDirFlag,
			Usage:  "data directory for the file storage backend",
			Value:  "data",
			EnvVar: "LAUREL_DATA_DIR",
		},
		cli.StringFlag{
			Name:   dbURIFlag,
			Usage:  "specify a mongodb connection string",
			Value:  "mongodb://localhost:27017",
			EnvVar: "LAUREL_MONGODB_URI",
		},
		cli.StringFlag{
			Name:   dbNameFlag,
			Usage:  "specify a database name to use",
			Value:  "laurel",
			EnvVar: "LAUREL_DATABASE_NAME",
		})
}

func addPathFlag(flags ...cli.Flag) []cli.Flag {
	return append(flags, cli.StringFlag{
		Name:  joinFlagNames(pathFlagName, "filename", "file", "f"),
		Usage: "path to a suite definition file",
	})
}

func configFromFlags(c *cli.Context) *laurel.Configuration {
	return &laurel.Configuration{
		StorageType:     laurel.StorageKind(c.String(storageFlag)),
		DataDir:         c.String(dataDirFlag),
		MongoDBURI:      c.String(dbURIFlag),
		DatabaseName:    c.String(dbNameFlag),
		NumWorkers:      c.Int(numWorkersFlag),
		DispatchTimeout: c.Duration(dispatchFlag),
		ClientTTL:       c.Duration(clientTTLFlag),
		ExportBucket:    c.String(exportBucketFlag),
	}
}

func serviceFlags(flags ...cli.Flag) []cli.Flag {
	return append(flags,
		cli.IntFlag{
			Name:   joinFlagNames(portFlag, "p"),
			Usage:  "specify a port to run the service on",
			Value:  3000,
			EnvVar: "LAUREL_SERVICE_PORT",
		},
		cli.DurationFlag{
			Name:   dispatchFlag,
			Usage:  "per-configuration dispatch timeout",
			Value:  laurel.DefaultDispatchTimeout,
			EnvVar: "LAUREL_DISPATCH_TIMEOUT",
		},
		cli.DurationFlag{
			Name:   clientTTLFlag,
			Usage:  "heartbeat window after which clients count as disconnected",
			Value:  laurel.DefaultClientTTL,
			EnvVar: "LAUREL_CLIENT_TTL",
		},
		cli.StringFlag{
			Name:   exportBucketFlag,
			Usage:  "local bucket path for archived run exports",
			EnvVar: "LAUREL_EXPORT_BUCKET",
		})
}
