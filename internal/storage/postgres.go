package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/gorango/flowcraft/internal/blueprint"
)

// PostgresStore wraps a bun.DB the same way bun_store.go's BunStore does:
// one connection, three tables. Where the teacher decomposes a Workflow
// aggregate across WorkflowModel/NodeModel/EdgeModel/TriggerModel (because
// domain.Workflow exposes per-entity accessors its repository must walk),
// blueprint.Blueprint is already a flat, fully json-tagged value type, so
// BlueprintModel stores it as one jsonb document rather than decomposing
// it into node/edge tables — there is no teacher equivalent of walking a
// Blueprint's internals for persistence purposes.
//
// PostgresStore itself covers the run-context (fctx.KVStore) and event-log
// concerns; blueprint storage lives on the separate PostgresBlueprintStore
// type sharing the same connection, since fctx.KVStore and
// adapter.BlueprintStore both name their lookup method Get with different
// signatures and Go does not allow overloading one method name on one type.
type PostgresStore struct {
	db *bun.DB
}

// NewPostgresStore opens a bun.DB over dsn via pgdriver/pgdialect, matching
// NewBunStore's sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
// construction.
func NewPostgresStore(dsn string) *PostgresStore {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	return &PostgresStore{db: db}
}

// Blueprints returns a PostgresBlueprintStore sharing this store's
// connection, for callers (like cmd/flowcraftd) that need both the run
// context store and the blueprint repository from one DSN.
func (s *PostgresStore) Blueprints() *PostgresBlueprintStore {
	return &PostgresBlueprintStore{db: s.db}
}

// InitSchema creates the engine's tables if they don't already exist,
// following bun_store.go's InitSchema loop over its model list.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	models := []any{
		(*ContextModel)(nil),
		(*BlueprintModel)(nil),
		(*EventLogModel)(nil),
	}
	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *PostgresStore) Close() error                   { return s.db.DB.Close() }

// ContextModel persists one run-scoped key/value pair, an upsert target
// keyed by (run_id, key) the way WorkflowModel upserts on (id).
type ContextModel struct {
	bun.BaseModel `bun:"table:run_context,alias:rc"`

	RunID     string    `bun:"run_id,pk"`
	Key       string    `bun:"key,pk"`
	Value     any       `bun:"value,type:jsonb"`
	UpdatedAt time.Time `bun:"updated_at"`
}

// Get implements fctx.KVStore.
func (s *PostgresStore) Get(ctx context.Context, runID, key string) (any, bool, error) {
	model := new(ContextModel)
	err := s.db.NewSelect().Model(model).
		Where("run_id = ? AND key = ?", runID, key).
		Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return model.Value, true, nil
}

// Set implements fctx.KVStore via an upsert, matching WorkflowModel's
// ".On(\"CONFLICT (id) DO UPDATE\")" insert pattern.
func (s *PostgresStore) Set(ctx context.Context, runID, key string, value any) error {
	model := &ContextModel{RunID: runID, Key: key, Value: value, UpdatedAt: time.Now()}
	_, err := s.db.NewInsert().Model(model).
		On("CONFLICT (run_id, key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// Delete implements fctx.KVStore.
func (s *PostgresStore) Delete(ctx context.Context, runID, key string) error {
	_, err := s.db.NewDelete().Model((*ContextModel)(nil)).
		Where("run_id = ? AND key = ?", runID, key).
		Exec(ctx)
	return err
}

// All implements fctx.KVStore.
func (s *PostgresStore) All(ctx context.Context, runID string) (map[string]any, error) {
	var models []ContextModel
	if err := s.db.NewSelect().Model(&models).Where("run_id = ?", runID).Scan(ctx); err != nil {
		return nil, err
	}
	out := make(map[string]any, len(models))
	for _, m := range models {
		out[m.Key] = m.Value
	}
	return out, nil
}

// BlueprintModel persists one blueprint version as a jsonb document, keyed
// by id+version so history accumulates instead of overwriting.
type BlueprintModel struct {
	bun.BaseModel `bun:"table:blueprints,alias:bp"`

	ID        string    `bun:"id,pk"`
	Version   string    `bun:"version,pk"`
	Document  []byte    `bun:"document,type:jsonb"`
	CreatedAt time.Time `bun:"created_at"`
}

// PostgresBlueprintStore is the blueprint-repository half of PostgresStore,
// split into its own type because fctx.KVStore's Get(ctx, runID, key) and
// adapter.BlueprintStore's Get(ctx, id) can't both be named Get on one Go
// type. Construct it via PostgresStore.Blueprints() to share a connection,
// or NewPostgresBlueprintStore(dsn) to use it standalone.
type PostgresBlueprintStore struct {
	db *bun.DB
}

// NewPostgresBlueprintStore opens its own bun.DB over dsn, for callers that
// only need blueprint storage and not the run-context/event-log tables.
func NewPostgresBlueprintStore(dsn string) *PostgresBlueprintStore {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return &PostgresBlueprintStore{db: bun.NewDB(sqldb, pgdialect.New())}
}

// InitSchema creates the blueprints table if it doesn't already exist.
func (s *PostgresBlueprintStore) InitSchema(ctx context.Context) error {
	_, err := s.db.NewCreateTable().Model((*BlueprintModel)(nil)).IfNotExists().Exec(ctx)
	return err
}

func (s *PostgresBlueprintStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *PostgresBlueprintStore) Close() error                   { return s.db.DB.Close() }

// Put serializes bp and upserts it under (ID, Metadata.Version).
func (s *PostgresBlueprintStore) Put(ctx context.Context, bp *blueprint.Blueprint) error {
	doc, err := blueprintToJSON(bp)
	if err != nil {
		return err
	}
	model := &BlueprintModel{ID: bp.ID, Version: bp.Metadata.Version, Document: doc, CreatedAt: time.Now()}
	_, err = s.db.NewInsert().Model(model).
		On("CONFLICT (id, version) DO UPDATE").
		Set("document = EXCLUDED.document").
		Exec(ctx)
	return err
}

// Get implements adapter.BlueprintStore, resolving id to its most recently
// stored version — workers fetch by id alone and rely on adapter.HandleJob's
// own version check against the run's persisted blueprintVersion.
func (s *PostgresBlueprintStore) Get(ctx context.Context, id string) (*blueprint.Blueprint, bool, error) {
	model := new(BlueprintModel)
	err := s.db.NewSelect().Model(model).
		Where("id = ?", id).
		OrderExpr("created_at DESC").
		Limit(1).
		Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	bp, err := blueprintFromJSON(model.Document)
	if err != nil {
		return nil, false, err
	}
	return bp, true, nil
}

// EventLogModel persists one published event, the generalized counterpart
// of EventModel: the teacher's fixed workflow_id/execution_id/node_id
// columns collapse into a single jsonb payload here since spec.md's event
// taxonomy already carries those identifiers inside the payload map
// rather than as typed domain.Event fields.
type EventLogModel struct {
	bun.BaseModel `bun:"table:event_log,alias:el"`

	ID        uuid.UUID      `bun:"id,pk"`
	EventType string         `bun:"event_type"`
	Payload   map[string]any `bun:"payload,type:jsonb"`
	Timestamp time.Time      `bun:"timestamp"`
}

// AppendEvent inserts one log entry. Meant to be wired as an obsv.Bus
// subscriber for durable audit/replay, the Postgres counterpart of
// MemoryEventLog.Record.
func (s *PostgresStore) AppendEvent(ctx context.Context, eventType string, payload map[string]any) error {
	model := &EventLogModel{ID: uuid.New(), EventType: eventType, Payload: payload, Timestamp: time.Now()}
	_, err := s.db.NewInsert().Model(model).Exec(ctx)
	return err
}

// EventsByType retrieves logged events of a single type in chronological
// order, the Postgres counterpart of the teacher's GetEventsByType.
func (s *PostgresStore) EventsByType(ctx context.Context, eventType string) ([]EventLogModel, error) {
	var models []EventLogModel
	err := s.db.NewSelect().Model(&models).
		Where("event_type = ?", eventType).
		OrderExpr("timestamp ASC").
		Scan(ctx)
	return models, err
}
