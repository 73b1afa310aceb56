package graph

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Statement is a parameterized cypher query
type Statement struct {
	Cypher string
	Params map[string]any
}

// Store is the part of Client the lineage writer needs
type Store interface {
	Write(ctx context.Context, statements ...Statement) error
	Read(ctx context.Context, stmt Statement, column string) ([]any, error)
}

const (
	mergeCypher = `
		MERGE (k:Person {id: $keeper_id})
		WITH k
		UNWIND $merged_ids AS merged_id
		MERGE (d:Person {id: merged_id})
		MERGE (d)-[r:MERGED_INTO]->(k)
		SET r.event_id = $event_id, r.actor = $actor, r.merged_at = $merged_at
	`

	unmergeCypher = `
		MATCH (d:Person)-[r:MERGED_INTO]->(k:Person {id: $keeper_id})
		WHERE d.id IN $merged_ids
		DELETE r
	`

	lineageCypher = `
		MATCH (d:Person)-[:MERGED_INTO*1..]->(k:Person {id: $keeper_id})
		RETURN DISTINCT d.id AS id
		ORDER BY id
	`
)

// LineageWriter keeps MERGED_INTO edges from each retired record to its keeper
type LineageWriter struct {
	store  Store
	logger ectologger.Logger
}

func NewLineageWriter(store Store, logger ectologger.Logger) *LineageWriter {
	return &LineageWriter{
		store:  store,
		logger: logger,
	}
}

func (w *LineageWriter) RecordMerge(ctx context.Context, event models.MergeActivityEvent) error {
	ctx, span := tracing.StartSpan(ctx, "graph.LineageWriter.RecordMerge")
	defer span.End()

	if len(event.MergedIDs) == 0 {
		return nil
	}

	err := w.store.Write(ctx, MergeStatement(event))
	if err != nil {
		w.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"keeper_id": event.KeeperID,
			"event_id":  event.ID,
		}).Error("Failed to record merge lineage")
		return err
	}
	return nil
}

func (w *LineageWriter) RemoveMerge(ctx context.Context, event models.MergeActivityEvent) error {
	ctx, span := tracing.StartSpan(ctx, "graph.LineageWriter.RemoveMerge")
	defer span.End()

	if len(event.MergedIDs) == 0 {
		return nil
	}

	err := w.store.Write(ctx, UnmergeStatement(event))
	if err != nil {
		w.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"keeper_id": event.KeeperID,
			"event_id":  event.ID,
		}).Error("Failed to remove merge lineage")
		return err
	}
	return nil
}

// MergedInto lists every record that was folded into keeperID, directly or through an earlier keeper
func (w *LineageWriter) MergedInto(ctx context.Context, keeperID string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.LineageWriter.MergedInto")
	defer span.End()

	values, err := w.store.Read(ctx, Statement{
		Cypher: lineageCypher,
		Params: map[string]any{"keeper_id": keeperID},
	}, "id")
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(values))
	for _, v := range values {
		if id, ok := v.(string); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func MergeStatement(event models.MergeActivityEvent) Statement {
	return Statement{
		Cypher: mergeCypher,
		Params: map[string]any{
			"keeper_id":  event.KeeperID,
			"merged_ids": event.MergedIDs,
			"event_id":   event.ID,
			"actor":      event.Actor,
			"merged_at":  event.Timestamp.UTC().Format("2006-01-02T15:04:05Z07:00"),
		},
	}
}

func UnmergeStatement(event models.MergeActivityEvent) Statement {
	return Statement{
		Cypher: unmergeCypher,
		Params: map[string]any{
			"keeper_id":  event.KeeperID,
			"merged_ids": event.MergedIDs,
		},
	}
}
