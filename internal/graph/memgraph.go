package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/agenthands/loom/internal/core/common"
	"github.com/agenthands/loom/internal/core/model"
	"github.com/agenthands/loom/internal/driver"
)

// MemgraphStore persists the knowledge graph in Memgraph. Entity merge
// atomicity comes from Cypher MERGE on the (normalized_name, type) key, so
// concurrent pipelines cannot create duplicate nodes; relationship strength
// is updated inside the same MERGE statement.
type MemgraphStore struct {
	Driver    driver.GraphDriver
	Increment float64
	Cache     *TTLCache
}

func NewMemgraphStore(d driver.GraphDriver, increment float64, cache *TTLCache) *MemgraphStore {
	if increment <= 0 {
		increment = 0.3
	}
	return &MemgraphStore{Driver: d, Increment: increment, Cache: cache}
}

func (s *MemgraphStore) MergeEntity(ctx context.Context, e model.Entity, seenAt time.Time) (model.Node, error) {
	variants := e.AllVariants()
	if s.Cache != nil {
		for _, v := range variants {
			s.Cache.Invalidate(v)
		}
	}

	// Alias overlap first: a variant may already belong to a node with a
	// different canonical key.
	res, err := s.Driver.ExecuteQuery(ctx, driver.FindEntityByAliasQuery, map[string]interface{}{
		"type":     string(e.Type),
		"variants": variants,
	})
	if err != nil {
		return model.Node{}, fmt.Errorf("alias lookup failed: %w", err)
	}
	if len(res.Records) > 0 {
		existingUUID, _ := res.Records[0].Get("uuid")
		res, err = s.Driver.ExecuteQuery(ctx, driver.MergeEntityByUUIDQuery, map[string]interface{}{
			"uuid":       existingUUID,
			"seen_at":    seenAt.UTC().Format(time.RFC3339Nano),
			"confidence": e.Confidence,
			"variants":   variants,
		})
		if err != nil {
			return model.Node{}, fmt.Errorf("entity merge failed: %w", err)
		}
		return nodeFromRecord(res.Records[0])
	}

	res, err = s.Driver.ExecuteQuery(ctx, driver.MergeEntityNodeQuery, map[string]interface{}{
		"uuid":            uuid.New().String(),
		"name":            e.Name,
		"normalized_name": e.NormalizedName,
		"type":            string(e.Type),
		"aliases":         variants,
		"seen_at":         seenAt.UTC().Format(time.RFC3339Nano),
		"confidence":      e.Confidence,
	})
	if err != nil {
		return model.Node{}, fmt.Errorf("entity upsert failed: %w", err)
	}
	if len(res.Records) == 0 {
		return model.Node{}, fmt.Errorf("entity upsert returned no record")
	}

	node, err := nodeFromRecord(res.Records[0])
	if err != nil {
		return model.Node{}, err
	}

	// The MERGE may have landed on a pre-existing node whose alias set
	// lacks the new variants.
	if _, err := s.Driver.ExecuteQuery(ctx, driver.AppendAliasesQuery, map[string]interface{}{
		"uuid":     node.UUID,
		"variants": variants,
	}); err != nil {
		return model.Node{}, fmt.Errorf("alias append failed: %w", err)
	}

	return node, nil
}

func (s *MemgraphStore) MergeRelationship(ctx context.Context, subjectUUID, predicate, objectUUID string, seenAt time.Time) (model.Relationship, error) {
	res, err := s.Driver.ExecuteQuery(ctx, driver.MergeRelationshipQuery, map[string]interface{}{
		"uuid":         uuid.New().String(),
		"subject_uuid": subjectUUID,
		"object_uuid":  objectUUID,
		"predicate":    predicate,
		"increment":    s.Increment,
		"seen_at":      seenAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return model.Relationship{}, fmt.Errorf("relationship merge failed: %w", err)
	}
	if len(res.Records) == 0 {
		return model.Relationship{}, fmt.Errorf("relationship merge returned no record")
	}

	rec := res.Records[0]
	rel := model.Relationship{
		UUID:         recString(rec, "uuid"),
		SubjectUUID:  subjectUUID,
		Predicate:    recString(rec, "predicate"),
		ObjectUUID:   objectUUID,
		Strength:     recFloat(rec, "strength"),
		MentionCount: recInt(rec, "mention_count"),
		FirstSeen:    recTime(rec, "first_seen"),
		LastSeen:     recTime(rec, "last_seen"),
	}
	return rel, nil
}

func (s *MemgraphStore) GetEntity(ctx context.Context, name string) (model.Node, error) {
	normalized := common.NormalizeName(name)

	var gen uint64
	if s.Cache != nil {
		if cached, ok := s.Cache.Get(normalized); ok {
			return cached.(model.Node), nil
		}
		gen = s.Cache.Generation(normalized)
	}

	res, err := s.Driver.ExecuteQuery(ctx, driver.GetEntityByNormalizedNameQuery, map[string]interface{}{
		"normalized_name": normalized,
	})
	if err != nil {
		return model.Node{}, fmt.Errorf("entity lookup failed: %w", err)
	}
	if len(res.Records) == 0 {
		res, err = s.Driver.ExecuteQuery(ctx, driver.GetEntityByAnyAliasQuery, map[string]interface{}{
			"normalized_name": normalized,
		})
		if err != nil {
			return model.Node{}, fmt.Errorf("alias lookup failed: %w", err)
		}
	}
	if len(res.Records) == 0 {
		return model.Node{}, ErrNotFound
	}

	node, err := nodeFromRecord(res.Records[0])
	if err != nil {
		return model.Node{}, err
	}
	if s.Cache != nil {
		s.Cache.Set(normalized, node, gen)
	}
	return node, nil
}

func (s *MemgraphStore) ListEntities(ctx context.Context, prefix string, limit int) ([]model.Node, error) {
	if limit <= 0 {
		limit = 100
	}
	res, err := s.Driver.ExecuteQuery(ctx, driver.ListEntitiesQuery, map[string]interface{}{
		"prefix": common.NormalizeName(prefix),
		"limit":  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("entity list failed: %w", err)
	}

	var out []model.Node
	for _, rec := range res.Records {
		node, err := nodeFromRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, node)
	}
	return out, nil
}

func (s *MemgraphStore) Relationships(ctx context.Context, nodeUUID string) ([]model.Relationship, error) {
	res, err := s.Driver.ExecuteQuery(ctx, driver.NodeRelationshipsQuery, map[string]interface{}{
		"uuid": nodeUUID,
	})
	if err != nil {
		return nil, fmt.Errorf("relationship list failed: %w", err)
	}

	var out []model.Relationship
	for _, rec := range res.Records {
		out = append(out, model.Relationship{
			UUID:         recString(rec, "uuid"),
			SubjectUUID:  recString(rec, "subject_uuid"),
			Predicate:    recString(rec, "predicate"),
			ObjectUUID:   recString(rec, "object_uuid"),
			Strength:     recFloat(rec, "strength"),
			MentionCount: recInt(rec, "mention_count"),
			FirstSeen:    recTime(rec, "first_seen"),
			LastSeen:     recTime(rec, "last_seen"),
		})
	}
	return out, nil
}

func (s *MemgraphStore) SaveContext(ctx context.Context, item model.ContextItem, trace []string) error {
	_, err := s.Driver.ExecuteQuery(ctx, driver.SaveContextQuery, map[string]interface{}{
		"uuid":        item.UUID,
		"text":        item.Text,
		"source":      string(item.Source),
		"external_id": item.ExternalID,
		"created_at":  item.CreatedAt.UTC().Format(time.RFC3339Nano),
		"trace":       trace,
	})
	if err != nil {
		return fmt.Errorf("context save failed: %w", err)
	}
	return nil
}

func (s *MemgraphStore) GetContext(ctx context.Context, id string) (model.ContextItem, []string, error) {
	res, err := s.Driver.ExecuteQuery(ctx, driver.GetContextQuery, map[string]interface{}{"uuid": id})
	if err != nil {
		return model.ContextItem{}, nil, fmt.Errorf("context lookup failed: %w", err)
	}
	if len(res.Records) == 0 {
		return model.ContextItem{}, nil, ErrNotFound
	}

	rec := res.Records[0]
	item := model.ContextItem{
		UUID:       recString(rec, "uuid"),
		Text:       recString(rec, "text"),
		Source:     model.SourceType(recString(rec, "source")),
		ExternalID: recString(rec, "external_id"),
		CreatedAt:  recTime(rec, "created_at"),
	}
	return item, recStrings(rec, "trace"), nil
}

func (s *MemgraphStore) TaskRefs(ctx context.Context) ([]model.TaskRef, error) {
	res, err := s.Driver.ExecuteQuery(ctx, driver.ListTaskRefsQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("task ref list failed: %w", err)
	}

	var out []model.TaskRef
	for _, rec := range res.Records {
		out = append(out, model.TaskRef{
			TaskID:      recString(rec, "task_id"),
			Title:       recString(rec, "title"),
			EntityUUIDs: recStrings(rec, "entity_uuids"),
			Assignee:    recString(rec, "assignee"),
			Project:     recString(rec, "project"),
			UpdatedAt:   recTime(rec, "updated_at"),
		})
	}
	return out, nil
}

func (s *MemgraphStore) SaveTaskRef(ctx context.Context, ref model.TaskRef) error {
	_, err := s.Driver.ExecuteQuery(ctx, driver.SaveTaskRefQuery, map[string]interface{}{
		"task_id":      ref.TaskID,
		"title":        ref.Title,
		"entity_uuids": ref.EntityUUIDs,
		"assignee":     ref.Assignee,
		"project":      ref.Project,
		"updated_at":   ref.UpdatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("task ref save failed: %w", err)
	}
	return nil
}

func (s *MemgraphStore) Close(ctx context.Context) error {
	return s.Driver.Close(ctx)
}

func nodeFromRecord(rec *neo4j.Record) (model.Node, error) {
	return model.Node{
		UUID:           recString(rec, "uuid"),
		Name:           recString(rec, "name"),
		NormalizedName: recString(rec, "normalized_name"),
		Type:           model.EntityType(recString(rec, "type")),
		Aliases:        recStrings(rec, "aliases"),
		MentionCount:   recInt(rec, "mention_count"),
		FirstSeen:      recTime(rec, "first_seen"),
		LastSeen:       recTime(rec, "last_seen"),
		AvgConfidence:  recFloat(rec, "avg_confidence"),
	}, nil
}

func recString(rec *neo4j.Record, key string) string {
	v, _ := rec.Get(key)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func recStrings(rec *neo4j.Record, key string) []string {
	v, _ := rec.Get(key)
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func recInt(rec *neo4j.Record, key string) int {
	v, _ := rec.Get(key)
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}

func recFloat(rec *neo4j.Record, key string) float64 {
	v, _ := rec.Get(key)
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	}
	return 0
}

func recTime(rec *neo4j.Record, key string) time.Time {
	v, _ := rec.Get(key)
	if s, ok := v.(string); ok {
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return ts
		}
	}
	if ts, ok := v.(time.Time); ok {
		return ts
	}
	return time.Time{}
}
