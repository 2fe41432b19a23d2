package graph

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agenthands/loom/internal/core/common"
	"github.com/agenthands/loom/internal/core/model"
)

type contextRecord struct {
	item  model.ContextItem
	trace []string
}

// MemoryStore is the embedded Store implementation. A single mutex makes
// entity merge and relationship read-modify-write atomic under concurrent
// pipeline runs.
type MemoryStore struct {
	mu        sync.Mutex
	increment float64
	cache     *TTLCache

	nodes    map[string]*model.Node // normalized_name|type -> node
	byUUID   map[string]*model.Node
	rels     map[string]*model.Relationship // subject|predicate|object
	contexts map[string]contextRecord
	taskRefs map[string]model.TaskRef
}

// NewMemoryStore creates an empty store. The cache, if non-nil, fronts
// entity reads and is invalidated synchronously before every entity write.
func NewMemoryStore(increment float64, cache *TTLCache) *MemoryStore {
	if increment <= 0 {
		increment = 0.3
	}
	return &MemoryStore{
		increment: increment,
		cache:     cache,
		nodes:     make(map[string]*model.Node),
		byUUID:    make(map[string]*model.Node),
		rels:      make(map[string]*model.Relationship),
		contexts:  make(map[string]contextRecord),
		taskRefs:  make(map[string]model.TaskRef),
	}
}

func nodeKey(normalized string, t model.EntityType) string {
	return normalized + "|" + string(t)
}

func (s *MemoryStore) MergeEntity(ctx context.Context, e model.Entity, seenAt time.Time) (model.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	variants := e.AllVariants()

	// Exact normalized-name match first.
	var node *model.Node
	for _, v := range variants {
		if n, ok := s.nodes[nodeKey(v, e.Type)]; ok {
			node = n
			break
		}
	}

	// Then alias-set overlap within the same type.
	if node == nil {
		for _, n := range s.nodes {
			if n.Type != e.Type {
				continue
			}
			for _, v := range variants {
				if n.HasAlias(v) {
					node = n
					break
				}
			}
			if node != nil {
				break
			}
		}
	}

	if node == nil {
		node = &model.Node{
			UUID:           uuid.New().String(),
			Name:           e.Name,
			NormalizedName: e.NormalizedName,
			Type:           e.Type,
			Aliases:        append([]string(nil), variants...),
			MentionCount:   1,
			FirstSeen:      seenAt,
			LastSeen:       seenAt,
			AvgConfidence:  e.Confidence,
		}
		s.nodes[nodeKey(e.NormalizedName, e.Type)] = node
		s.byUUID[node.UUID] = node
		return *node, nil
	}

	// Invalidate cached reads before touching the node.
	s.invalidateNode(node, variants)

	node.MentionCount++
	node.LastSeen = seenAt
	node.AvgConfidence += (e.Confidence - node.AvgConfidence) / float64(node.MentionCount)
	for _, v := range variants {
		if !node.HasAlias(v) {
			node.Aliases = append(node.Aliases, v)
		}
	}

	return *node, nil
}

func (s *MemoryStore) invalidateNode(node *model.Node, variants []string) {
	if s.cache == nil {
		return
	}
	for _, a := range node.Aliases {
		s.cache.Invalidate(a)
	}
	for _, v := range variants {
		s.cache.Invalidate(v)
	}
	s.cache.Invalidate(node.NormalizedName)
}

func (s *MemoryStore) MergeRelationship(ctx context.Context, subjectUUID, predicate, objectUUID string, seenAt time.Time) (model.Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := subjectUUID + "|" + predicate + "|" + objectUUID
	rel, ok := s.rels[key]
	if !ok {
		rel = &model.Relationship{
			UUID:         uuid.New().String(),
			SubjectUUID:  subjectUUID,
			Predicate:    predicate,
			ObjectUUID:   objectUUID,
			Strength:     Accumulate(0, s.increment),
			MentionCount: 1,
			FirstSeen:    seenAt,
			LastSeen:     seenAt,
		}
		s.rels[key] = rel
		return *rel, nil
	}

	rel.Strength = Accumulate(rel.Strength, s.increment)
	rel.MentionCount++
	rel.LastSeen = seenAt
	return *rel, nil
}

func (s *MemoryStore) GetEntity(ctx context.Context, name string) (model.Node, error) {
	normalized := common.NormalizeName(name)

	var gen uint64
	if s.cache != nil {
		if cached, ok := s.cache.Get(normalized); ok {
			return cached.(model.Node), nil
		}
		gen = s.cache.Generation(normalized)
	}

	s.mu.Lock()
	node, err := s.lookupLocked(normalized)
	s.mu.Unlock()
	if err != nil {
		return model.Node{}, err
	}

	if s.cache != nil {
		s.cache.Set(normalized, node, gen)
	}
	return node, nil
}

func (s *MemoryStore) lookupLocked(normalized string) (model.Node, error) {
	for _, n := range s.nodes {
		if n.NormalizedName == normalized {
			return *n, nil
		}
	}
	for _, n := range s.nodes {
		if n.HasAlias(normalized) {
			return *n, nil
		}
	}
	return model.Node{}, ErrNotFound
}

func (s *MemoryStore) ListEntities(ctx context.Context, prefix string, limit int) ([]model.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix = common.NormalizeName(prefix)
	var out []model.Node
	for _, n := range s.nodes {
		if prefix == "" || strings.HasPrefix(n.NormalizedName, prefix) {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NormalizedName < out[j].NormalizedName })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Relationships(ctx context.Context, nodeUUID string) ([]model.Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Relationship
	for _, r := range s.rels {
		if r.SubjectUUID == nodeUUID || r.ObjectUUID == nodeUUID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UUID < out[j].UUID })
	return out, nil
}

func (s *MemoryStore) SaveContext(ctx context.Context, item model.ContextItem, trace []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.contexts[item.UUID] = contextRecord{item: item, trace: append([]string(nil), trace...)}
	return nil
}

func (s *MemoryStore) GetContext(ctx context.Context, id string) (model.ContextItem, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.contexts[id]
	if !ok {
		return model.ContextItem{}, nil, ErrNotFound
	}
	return rec.item, append([]string(nil), rec.trace...), nil
}

func (s *MemoryStore) TaskRefs(ctx context.Context) ([]model.TaskRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.TaskRef, 0, len(s.taskRefs))
	for _, ref := range s.taskRefs {
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out, nil
}

func (s *MemoryStore) SaveTaskRef(ctx context.Context, ref model.TaskRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.taskRefs[ref.TaskID] = ref
	return nil
}

func (s *MemoryStore) Close(ctx context.Context) error {
	return nil
}
