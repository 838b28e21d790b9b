package pgx

import (
	"context"
	"fmt"

	"github.com/plmforge/copilot/internal/util"
	"github.com/plmforge/copilot/pkg/common"
)

const upsertEntitySQL = `
INSERT INTO entities (key, type, name, description, props)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (key) DO UPDATE SET
	name = CASE
		WHEN excluded.name <> '' AND (entities.name = '' OR entities.name = entities.key)
		THEN excluded.name
		ELSE entities.name
	END,
	description = CASE
		WHEN length(excluded.description) > length(entities.description)
		THEN excluded.description
		ELSE entities.description
	END,
	props = entities.props || excluded.props,
	updated_at = now()
`

const mergeRelationshipSQL = `
INSERT INTO relationships (type, source_key, target_key, description, props, provenance)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (type, source_key, target_key) DO UPDATE SET
	description = CASE
		WHEN length(excluded.description) > length(relationships.description)
		THEN excluded.description
		ELSE relationships.description
	END,
	props = relationships.props || excluded.props,
	provenance = (
		SELECT array_agg(DISTINCT p ORDER BY p)
		FROM unnest(relationships.provenance || excluded.provenance) AS p
	)
`

const upsertRecordSQL = `
INSERT INTO records (id, kind, source, text, fields)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
	kind = excluded.kind,
	source = excluded.source,
	text = excluded.text,
	fields = excluded.fields
`

// MergeRecord commits one record's extraction output in a single
// transaction. Entities upsert by natural key before relationships, so edges
// emitted with their own endpoints never dangle; the foreign keys catch
// edges pointing outside the transaction and outside the existing graph.
func (s *GraphDBStorage) MergeRecord(
	ctx context.Context,
	record common.Record,
	entities []common.Entity,
	rels []common.Relationship,
) (common.CommitResult, error) {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return common.CommitResult{}, fmt.Errorf("%w: begin: %v", common.ErrGraphTransactionFailed, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, upsertRecordSQL,
		record.ID, string(record.Kind), record.Source,
		util.SanitizePostgresText(record.Text), record.Fields,
	); err != nil {
		return common.CommitResult{}, fmt.Errorf("%w: record %s: %v", common.ErrGraphTransactionFailed, record.ID, err)
	}

	for _, e := range entities {
		props := e.Props
		if props == nil {
			props = map[string]string{}
		}
		if _, err := tx.Exec(ctx, upsertEntitySQL,
			e.Key, string(e.Type), e.Name, util.SanitizePostgresText(e.Description), props,
		); err != nil {
			return common.CommitResult{}, fmt.Errorf("%w: entity %s: %v", common.ErrGraphTransactionFailed, e.Key, err)
		}
	}

	for _, r := range rels {
		props := r.Props
		if props == nil {
			props = map[string]string{}
		}
		if _, err := tx.Exec(ctx, mergeRelationshipSQL,
			string(r.Type), r.SourceKey, r.TargetKey,
			util.SanitizePostgresText(r.Description), props, r.Provenance,
		); err != nil {
			return common.CommitResult{}, fmt.Errorf("%w: relationship %s %s->%s: %v",
				common.ErrGraphTransactionFailed, r.Type, r.SourceKey, r.TargetKey, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return common.CommitResult{}, fmt.Errorf("%w: commit %s: %v", common.ErrGraphTransactionFailed, record.ID, err)
	}

	return common.CommitResult{
		RecordID:         record.ID,
		EntitiesUpserted: len(entities),
		RelationsMerged:  len(rels),
	}, nil
}
