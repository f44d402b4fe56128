package storage

import (
	"context"
	"time"

	"github.com/mongodb/anser/bsonutil"
	"github.com/pkg/errors"
	"github.com/unamentis/laurel/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names mirror the tables of the original harness database
// so existing dashboards keep working against migrated data.
const (
	suitesCollection    = "latency_test_suites"
	runsCollection      = "latency_test_runs"
	resultsCollection   = "latency_test_results"
	baselinesCollection = "latency_baselines"
)

var (
	runIDKey        = bsonutil.MustHaveTag(model.TestRun{}, "ID")
	runSuiteIDKey   = bsonutil.MustHaveTag(model.TestRun{}, "SuiteID")
	runStartedAtKey = bsonutil.MustHaveTag(model.TestRun{}, "StartedAt")
	runStatusKey    = bsonutil.MustHaveTag(model.TestRun{}, "Status")
	runCompletedKey = bsonutil.MustHaveTag(model.TestRun{}, "CompletedConfigurations")
	runFinishedKey  = bsonutil.MustHaveTag(model.TestRun{}, "CompletedAt")

	resultConfigIDKey  = bsonutil.MustHaveTag(model.TestResult{}, "ConfigID")
	resultTimestampKey = bsonutil.MustHaveTag(model.TestResult{}, "Timestamp")

	baselineCreatedAtKey = bsonutil.MustHaveTag(model.PerformanceBaseline{}, "CreatedAt")
	baselineIsActiveKey  = bsonutil.MustHaveTag(model.PerformanceBaseline{}, "IsActive")
)

const resultRunIDKey = "run_id"

// resultDocument adds the owning run's id to a stored result; results
// live in their own collection to keep run documents small.
type resultDocument struct {
	RunID  string           `bson:"run_id"`
	Result model.TestResult `bson:"result"`
}

const resultBodyKey = "result"

// MongoStorage persists harness data in MongoDB via the driver the
// environment dialed.
type MongoStorage struct {
	db *mongo.Database
}

// NewMongoStorage wraps an already-connected database handle.
func NewMongoStorage(db *mongo.Database) *MongoStorage {
	return &MongoStorage{db: db}
}

func wrapMongoErr(err error, kind, id string) error {
	if err == mongo.ErrNoDocuments {
		return errors.Wrapf(ErrNotFound, "%s '%s'", kind, id)
	}
	return errors.Wrapf(err, "problem finding %s '%s'", kind, id)
}

////////////////////////////////////////////////////////////////////////
//
// Suites

func (s *MongoStorage) ListSuites(ctx context.Context) ([]model.TestSuiteDefinition, error) {
	cur, err := s.db.Collection(suitesCollection).Find(ctx, bson.M{},
		options.Find().SetSort(bson.M{"_id": 1}))
	if err != nil {
		return nil, errors.Wrap(err, "problem listing suites")
	}

	suites := []model.TestSuiteDefinition{}
	if err := cur.All(ctx, &suites); err != nil {
		return nil, errors.Wrap(err, "problem decoding suites")
	}
	return suites, nil
}

func (s *MongoStorage) GetSuite(ctx context.Context, id string) (*model.TestSuiteDefinition, error) {
	suite := &model.TestSuiteDefinition{}
	err := s.db.Collection(suitesCollection).FindOne(ctx, bson.M{"_id": id}).Decode(suite)
	if err != nil {
		return nil, wrapMongoErr(err, "suite", id)
	}
	return suite, nil
}

func (s *MongoStorage) SaveSuite(ctx context.Context, suite *model.TestSuiteDefinition) error {
	if suite.ID == "" {
		return errors.New("suite id is not specified")
	}
	_, err := s.db.Collection(suitesCollection).ReplaceOne(ctx,
		bson.M{"_id": suite.ID}, suite, options.Replace().SetUpsert(true))
	return errors.Wrapf(err, "problem saving suite '%s'", suite.ID)
}

func (s *MongoStorage) DeleteSuite(ctx context.Context, id string) error {
	res, err := s.db.Collection(suitesCollection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Wrapf(err, "problem deleting suite '%s'", id)
	}
	if res.DeletedCount == 0 {
		return errors.Wrapf(ErrNotFound, "suite '%s'", id)
	}
	return nil
}

////////////////////////////////////////////////////////////////////////
//
// Runs

func (s *MongoStorage) ListRuns(ctx context.Context, filter RunFilter) ([]model.TestRun, int, error) {
	query := bson.M{}
	if filter.Status != "" {
		query[runStatusKey] = filter.Status
	}
	if filter.SuiteID != "" {
		query[runSuiteIDKey] = filter.SuiteID
	}

	coll := s.db.Collection(runsCollection)
	total, err := coll.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, errors.Wrap(err, "problem counting runs")
	}

	opts := options.Find().SetSort(bson.M{runStartedAtKey: -1})
	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	cur, err := coll.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, errors.Wrap(err, "problem listing runs")
	}

	runs := []model.TestRun{}
	if err := cur.All(ctx, &runs); err != nil {
		return nil, 0, errors.Wrap(err, "problem decoding runs")
	}
	return runs, int(total), nil
}

func (s *MongoStorage) GetRun(ctx context.Context, id string) (*model.TestRun, error) {
	run := &model.TestRun{}
	err := s.db.Collection(runsCollection).FindOne(ctx, bson.M{runIDKey: id}).Decode(run)
	if err != nil {
		return nil, wrapMongoErr(err, "run", id)
	}

	results, err := s.GetResults(ctx, id, "", 0)
	if err != nil && !IsNotFound(err) {
		return nil, errors.Wrapf(err, "problem loading results for run '%s'", id)
	}
	run.Results = results
	return run, nil
}

func (s *MongoStorage) SaveRun(ctx context.Context, run *model.TestRun) error {
	if run.ID == "" {
		return errors.New("run id is not specified")
	}
	_, err := s.db.Collection(runsCollection).ReplaceOne(ctx,
		bson.M{runIDKey: run.ID}, run, options.Replace().SetUpsert(true))
	return errors.Wrapf(err, "problem saving run '%s'", run.ID)
}

func (s *MongoStorage) UpdateRunStatus(ctx context.Context, id string, status model.RunStatus, completedConfigurations int, completedAt time.Time) error {
	update := bson.M{
		runStatusKey:    status,
		runCompletedKey: completedConfigurations,
	}
	if !completedAt.IsZero() {
		update[runFinishedKey] = completedAt
	}

	res, err := s.db.Collection(runsCollection).UpdateOne(ctx,
		bson.M{runIDKey: id}, bson.M{"$set": update})
	if err != nil {
		return errors.Wrapf(err, "problem updating run '%s'", id)
	}
	if res.MatchedCount == 0 {
		return errors.Wrapf(ErrNotFound, "run '%s'", id)
	}
	return nil
}

func (s *MongoStorage) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.Collection(runsCollection).DeleteOne(ctx, bson.M{runIDKey: id})
	if err != nil {
		return errors.Wrapf(err, "problem deleting run '%s'", id)
	}
	if res.DeletedCount == 0 {
		return errors.Wrapf(ErrNotFound, "run '%s'", id)
	}

	_, err = s.db.Collection(resultsCollection).DeleteMany(ctx,
		bson.M{resultRunIDKey: id})
	return errors.Wrapf(err, "problem deleting results for run '%s'", id)
}

////////////////////////////////////////////////////////////////////////
//
// Results

func (s *MongoStorage) SaveResult(ctx context.Context, runID string, result model.TestResult) error {
	if result.ID == "" {
		return errors.New("result id is not specified")
	}
	doc := resultDocument{RunID: runID, Result: result}
	_, err := s.db.Collection(resultsCollection).ReplaceOne(ctx,
		bson.M{resultRunIDKey: runID, resultBodyKey + "._id": result.ID},
		doc, options.Replace().SetUpsert(true))
	return errors.Wrapf(err, "problem saving result for run '%s'", runID)
}

func (s *MongoStorage) GetResults(ctx context.Context, runID, configID string, limit int) ([]model.TestResult, error) {
	query := bson.M{resultRunIDKey: runID}
	if configID != "" {
		query[resultBodyKey+"."+resultConfigIDKey] = configID
	}

	opts := options.Find().SetSort(bson.M{resultBodyKey + "." + resultTimestampKey: 1})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.db.Collection(resultsCollection).Find(ctx, query, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "problem listing results for run '%s'", runID)
	}

	docs := []resultDocument{}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "problem decoding results")
	}
	out := make([]model.TestResult, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Result)
	}
	return out, nil
}

////////////////////////////////////////////////////////////////////////
//
// Baselines

func (s *MongoStorage) ListBaselines(ctx context.Context) ([]model.PerformanceBaseline, error) {
	cur, err := s.db.Collection(baselinesCollection).Find(ctx, bson.M{},
		options.Find().SetSort(bson.M{baselineCreatedAtKey: -1}))
	if err != nil {
		return nil, errors.Wrap(err, "problem listing baselines")
	}

	baselines := []model.PerformanceBaseline{}
	if err := cur.All(ctx, &baselines); err != nil {
		return nil, errors.Wrap(err, "problem decoding baselines")
	}
	return baselines, nil
}

func (s *MongoStorage) GetBaseline(ctx context.Context, id string) (*model.PerformanceBaseline, error) {
	baseline := &model.PerformanceBaseline{}
	err := s.db.Collection(baselinesCollection).FindOne(ctx, bson.M{"_id": id}).Decode(baseline)
	if err != nil {
		return nil, wrapMongoErr(err, "baseline", id)
	}
	return baseline, nil
}

func (s *MongoStorage) SaveBaseline(ctx context.Context, baseline *model.PerformanceBaseline) error {
	if baseline.ID == "" {
		return errors.New("baseline id is not specified")
	}

	coll := s.db.Collection(baselinesCollection)
	if baseline.IsActive {
		_, err := coll.UpdateMany(ctx,
			bson.M{"_id": bson.M{"$ne": baseline.ID}, baselineIsActiveKey: true},
			bson.M{"$set": bson.M{baselineIsActiveKey: false}})
		if err != nil {
			return errors.Wrap(err, "problem deactivating baselines")
		}
	}

	_, err := coll.ReplaceOne(ctx, bson.M{"_id": baseline.ID}, baseline,
		options.Replace().SetUpsert(true))
	return errors.Wrapf(err, "problem saving baseline '%s'", baseline.ID)
}

func (s *MongoStorage) DeleteBaseline(ctx context.Context, id string) error {
	res, err := s.db.Collection(baselinesCollection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Wrapf(err, "problem deleting baseline '%s'", id)
	}
	if res.DeletedCount == 0 {
		return errors.Wrapf(ErrNotFound, "baseline '%s'", id)
	}
	return nil
}

func (s *MongoStorage) GetActiveBaseline(ctx context.Context) (*model.PerformanceBaseline, error) {
	coll := s.db.Collection(baselinesCollection)

	baseline := &model.PerformanceBaseline{}
	err := coll.FindOne(ctx, bson.M{baselineIsActiveKey: true}).Decode(baseline)
	if err == nil {
		return baseline, nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, errors.Wrap(err, "problem finding active baseline")
	}

	// fall back to the most recently created baseline
	err = coll.FindOne(ctx, bson.M{},
		options.FindOne().SetSort(bson.M{baselineCreatedAtKey: -1})).Decode(baseline)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, errors.Wrap(ErrNotFound, "no baselines exist")
		}
		return nil, errors.Wrap(err, "problem finding newest baseline")
	}
	return baseline, nil
}
