package driver

const (
	// MergeEntityNodeQuery is the atomic upsert on the canonical key. The
	// running-mean update relies on mention_count being incremented first.
	MergeEntityNodeQuery = `
		MERGE (n:Entity {normalized_name: $normalized_name, type: $type})
		ON CREATE SET n.uuid = $uuid,
			n.name = $name,
			n.aliases = $aliases,
			n.mention_count = 1,
			n.first_seen = $seen_at,
			n.last_seen = $seen_at,
			n.avg_confidence = $confidence
		ON MATCH SET n.mention_count = n.mention_count + 1,
			n.last_seen = $seen_at,
			n.avg_confidence = n.avg_confidence + ($confidence - n.avg_confidence) / n.mention_count
		RETURN n.uuid AS uuid, n.name AS name, n.normalized_name AS normalized_name,
			n.type AS type, n.aliases AS aliases, n.mention_count AS mention_count,
			n.first_seen AS first_seen, n.last_seen AS last_seen, n.avg_confidence AS avg_confidence
	`

	FindEntityByAliasQuery = `
		MATCH (n:Entity {type: $type})
		WHERE any(a IN n.aliases WHERE a IN $variants)
		RETURN n.uuid AS uuid
		LIMIT 1
	`

	MergeEntityByUUIDQuery = `
		MATCH (n:Entity {uuid: $uuid})
		SET n.mention_count = n.mention_count + 1,
			n.last_seen = $seen_at,
			n.avg_confidence = n.avg_confidence + ($confidence - n.avg_confidence) / n.mention_count,
			n.aliases = n.aliases + [v IN $variants WHERE NOT v IN n.aliases]
		RETURN n.uuid AS uuid, n.name AS name, n.normalized_name AS normalized_name,
			n.type AS type, n.aliases AS aliases, n.mention_count AS mention_count,
			n.first_seen AS first_seen, n.last_seen AS last_seen, n.avg_confidence AS avg_confidence
	`

	AppendAliasesQuery = `
		MATCH (n:Entity {uuid: $uuid})
		SET n.aliases = n.aliases + [v IN $variants WHERE NOT v IN n.aliases]
		RETURN n.uuid AS uuid
	`

	// MergeRelationshipQuery is the atomic read-modify-write on strength.
	MergeRelationshipQuery = `
		MATCH (s:Entity {uuid: $subject_uuid})
		MATCH (o:Entity {uuid: $object_uuid})
		MERGE (s)-[r:RELATES {predicate: $predicate}]->(o)
		ON CREATE SET r.uuid = $uuid,
			r.strength = $increment,
			r.mention_count = 1,
			r.first_seen = $seen_at,
			r.last_seen = $seen_at
		ON MATCH SET r.strength = r.strength + $increment * (1 - r.strength),
			r.mention_count = r.mention_count + 1,
			r.last_seen = $seen_at
		RETURN r.uuid AS uuid, r.predicate AS predicate, r.strength AS strength,
			r.mention_count AS mention_count, r.first_seen AS first_seen, r.last_seen AS last_seen
	`

	GetEntityByNormalizedNameQuery = `
		MATCH (n:Entity {normalized_name: $normalized_name})
		RETURN n.uuid AS uuid, n.name AS name, n.normalized_name AS normalized_name,
			n.type AS type, n.aliases AS aliases, n.mention_count AS mention_count,
			n.first_seen AS first_seen, n.last_seen AS last_seen, n.avg_confidence AS avg_confidence
		LIMIT 1
	`

	GetEntityByAnyAliasQuery = `
		MATCH (n:Entity)
		WHERE $normalized_name IN n.aliases
		RETURN n.uuid AS uuid, n.name AS name, n.normalized_name AS normalized_name,
			n.type AS type, n.aliases AS aliases, n.mention_count AS mention_count,
			n.first_seen AS first_seen, n.last_seen AS last_seen, n.avg_confidence AS avg_confidence
		LIMIT 1
	`

	ListEntitiesQuery = `
		MATCH (n:Entity)
		WHERE $prefix = '' OR n.normalized_name STARTS WITH $prefix
		RETURN n.uuid AS uuid, n.name AS name, n.normalized_name AS normalized_name,
			n.type AS type, n.aliases AS aliases, n.mention_count AS mention_count,
			n.first_seen AS first_seen, n.last_seen AS last_seen, n.avg_confidence AS avg_confidence
		ORDER BY n.normalized_name
		LIMIT $limit
	`

	NodeRelationshipsQuery = `
		MATCH (s:Entity)-[r:RELATES]->(o:Entity)
		WHERE s.uuid = $uuid OR o.uuid = $uuid
		RETURN r.uuid AS uuid, s.uuid AS subject_uuid, r.predicate AS predicate,
			o.uuid AS object_uuid, r.strength AS strength, r.mention_count AS mention_count,
			r.first_seen AS first_seen, r.last_seen AS last_seen
	`

	SaveContextQuery = `
		MERGE (c:Context {uuid: $uuid})
		SET c.text = $text,
			c.source = $source,
			c.external_id = $external_id,
			c.created_at = $created_at,
			c.trace = $trace
		RETURN c.uuid AS uuid
	`

	GetContextQuery = `
		MATCH (c:Context {uuid: $uuid})
		RETURN c.uuid AS uuid, c.text AS text, c.source AS source,
			c.external_id AS external_id, c.created_at AS created_at, c.trace AS trace
	`

	SaveTaskRefQuery = `
		MERGE (t:TaskRef {task_id: $task_id})
		SET t.title = $title,
			t.entity_uuids = $entity_uuids,
			t.assignee = $assignee,
			t.project = $project,
			t.updated_at = $updated_at
		RETURN t.task_id AS task_id
	`

	ListTaskRefsQuery = `
		MATCH (t:TaskRef)
		RETURN t.task_id AS task_id, t.title AS title, t.entity_uuids AS entity_uuids,
			t.assignee AS assignee, t.project AS project, t.updated_at AS updated_at
		ORDER BY t.task_id
	`
)
