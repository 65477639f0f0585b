// Package mongostore implements runstore.Store on MongoDB, the durable
// backend internal/runstore/inmem's own doc comment defers to for
// production deployments.
package mongostore

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/flowforge/orchestrator/internal/model"
)

const (
	defaultCollection = "runs"
	defaultOpTimeout   = 5 * time.Second
	maxUpdateAttempts  = 5
)

// Options configures the Mongo-backed Run Registry store.
type Options struct {
	Client     *mongo.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// Store implements runstore.Store against a MongoDB collection. Update uses
// an optimistic-concurrency loop keyed on a version field, since the
// interface's mutate callback is arbitrary Go and can't be expressed as a
// single Mongo update document.
type Store struct {
	coll    *mongo.Collection
	timeout time.Duration
}

// New constructs a Store and ensures its unique run_id index exists.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongostore: client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("mongostore: database name is required")
	}
	collection := opts.Collection
	if collection == "" {
		collection = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	coll := opts.Client.Database(opts.Database).Collection(collection)

	indexCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	index := mongo.IndexModel{
		Keys:    bson.D{{Key: "run_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := coll.Indexes().CreateOne(indexCtx, index); err != nil {
		return nil, err
	}

	return &Store{coll: coll, timeout: timeout}, nil
}

type runDocument struct {
	RunID          string                     `bson:"run_id"`
	InternalRunID  string                     `bson:"internal_run_id"`
	WorkflowID     string                     `bson:"workflow_id"`
	TotalActions   int                        `bson:"total_actions"`
	OrganizationID string                     `bson:"organization_id,omitempty"`
	CreatedAt      time.Time                  `bson:"created_at"`
	UpdatedAt      time.Time                  `bson:"updated_at"`
	Status         model.RunStatus            `bson:"status"`
	Outputs        map[string]map[string]any `bson:"outputs,omitempty"`
	Error          string                     `bson:"error,omitempty"`
	Version        int                        `bson:"version"`
}

func fromRun(run model.Run, version int) runDocument {
	return runDocument{
		RunID:          run.RunID,
		InternalRunID:  run.InternalRunID,
		WorkflowID:     run.WorkflowID,
		TotalActions:   run.TotalActions,
		OrganizationID: run.OrganizationID,
		CreatedAt:      run.CreatedAt,
		UpdatedAt:      run.UpdatedAt,
		Status:         run.Status,
		Outputs:        run.Outputs,
		Error:          run.Error,
		Version:        version,
	}
}

func (doc runDocument) toRun() model.Run {
	return model.Run{
		RunID:          doc.RunID,
		InternalRunID:  doc.InternalRunID,
		WorkflowID:     doc.WorkflowID,
		TotalActions:   doc.TotalActions,
		OrganizationID: doc.OrganizationID,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
		Status:         doc.Status,
		Outputs:        doc.Outputs,
		Error:          doc.Error,
	}
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// Create implements runstore.Store.
func (s *Store) Create(ctx context.Context, run model.Run) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.coll.InsertOne(ctx, fromRun(run, 1))
	return err
}

// Get implements runstore.Store.
func (s *Store) Get(ctx context.Context, runID string) (model.Run, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var doc runDocument
	err := s.coll.FindOne(ctx, bson.M{"run_id": runID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Run{}, false, nil
	}
	if err != nil {
		return model.Run{}, false, err
	}
	return doc.toRun(), true, nil
}

// Update implements runstore.Store. It retries the load-mutate-replace
// cycle on a version conflict, the same race another request's concurrent
// terminal-status write would otherwise lose silently to.
func (s *Store) Update(ctx context.Context, runID string, mutate func(model.Run) model.Run) (model.Run, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		readCtx, cancel := s.withTimeout(ctx)
		var current runDocument
		err := s.coll.FindOne(readCtx, bson.M{"run_id": runID}).Decode(&current)
		cancel()
		if errors.Is(err, mongo.ErrNoDocuments) {
			return model.Run{}, errNotFound{runID: runID}
		}
		if err != nil {
			return model.Run{}, err
		}

		updated := mutate(current.toRun())
		next := fromRun(updated, current.Version+1)

		writeCtx, cancel := s.withTimeout(ctx)
		res, err := s.coll.ReplaceOne(writeCtx, bson.M{"run_id": runID, "version": current.Version}, next)
		cancel()
		if err != nil {
			return model.Run{}, err
		}
		if res.MatchedCount == 0 {
			continue
		}
		return updated, nil
	}
	return model.Run{}, errConflict{runID: runID}
}

// List implements runstore.Store.
func (s *Store) List(ctx context.Context, organizationID string) ([]model.Run, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	filter := bson.M{}
	if organizationID != "" {
		filter["organization_id"] = organizationID
	}
	cursor, err := s.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []runDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	runs := make([]model.Run, 0, len(docs))
	for _, doc := range docs {
		runs = append(runs, doc.toRun())
	}
	return runs, nil
}

type errNotFound struct{ runID string }

func (e errNotFound) Error() string { return "mongostore: run " + e.runID + " not found" }

type errConflict struct{ runID string }

func (e errConflict) Error() string {
	return "mongostore: run " + e.runID + " update conflicted after retries"
}
