package driver

var SchemaQueries = []string{
	"CREATE CONSTRAINT company_id IF NOT EXISTS FOR (c:Company) REQUIRE c.id IS UNIQUE",
	"CREATE CONSTRAINT waste_material_name IF NOT EXISTS FOR (m:WasteMaterial) REQUIRE m.name IS UNIQUE",
	"CREATE INDEX regulation_id IF NOT EXISTS FOR (r:Regulation) ON (r.id)",
	"CREATE INDEX company_industry IF NOT EXISTS FOR (c:Company) ON (c.industry)",
}

const (
	ListCompaniesQuery = `
		MATCH (c:Company)
		RETURN c.id AS id, c.name AS name, c.industry AS industry, c.location AS location,
			c.latitude AS latitude, c.longitude AS longitude,
			c.carbon_rating AS carbon_rating, c.capacity AS capacity
		ORDER BY c.id
	`

	// Material profile edges, keyed by node identity so two nodes sharing a
	// name or id never collapse into one. Ordering makes shared-name samples
	// stable across runs.
	ListMaterialLinksQuery = `
		MATCH (c:Company)-[:PRODUCES|CAN_UPCYCLE]->(m:WasteMaterial)
		RETURN DISTINCT c.id AS company_id, elementId(m) AS material_id, coalesce(m.name, m.id) AS material_name
		ORDER BY company_id, material_name, material_id
	`

	DeletePotentialMatchesQuery = `
		MATCH ()-[r:POTENTIAL_MATCH]->()
		DELETE r
		RETURN count(r) AS deleted
	`

	CreatePotentialMatchQuery = `
		MATCH (a:Company {id: $source_id})
		MATCH (b:Company {id: $target_id})
		CREATE (a)-[r:POTENTIAL_MATCH]->(b)
		SET r.score = $score,
			r.shared_materials = $shared_materials,
			r.shared_names = $shared_names,
			r.computed_at = $computed_at,
			r.run_id = $run_id
		RETURN count(r) AS created
	`

	PotentialMatchStatsQuery = `
		MATCH ()-[r:POTENTIAL_MATCH]->()
		RETURN count(r) AS total, avg(r.score) AS avg_score
	`

	TopPotentialMatchesQuery = `
		MATCH (a:Company)-[r:POTENTIAL_MATCH]->(b:Company)
		RETURN a.id AS source_id, a.name AS source_name, a.industry AS source_industry, a.location AS source_location,
			b.id AS target_id, b.name AS target_name, b.industry AS target_industry, b.location AS target_location,
			r.score AS score, r.shared_materials AS shared_materials, r.shared_names AS shared_names,
			r.computed_at AS computed_at
		ORDER BY r.score DESC, source_id, target_id
		LIMIT $limit
	`

	ListPotentialMatchEdgesQuery = `
		MATCH (a:Company)-[r:POTENTIAL_MATCH]->(b:Company)
		RETURN a.id AS source_id, a.name AS source_name, b.id AS target_id, b.name AS target_name, r.score AS score
		ORDER BY source_id, target_id
	`

	SearchMaterialsByEmbeddingQuery = `
		CALL db.index.vector.queryNodes('waste_material_embedding', $limit, $embedding)
		YIELD node, score
		WHERE coalesce(node.status, 'available') <> 'requested'
		RETURN node.id AS id, node.name AS name, node.category AS category,
			node.description AS description, node.status AS status, score
	`

	SearchMaterialsByTextQuery = `
		MATCH (m:WasteMaterial)
		WHERE coalesce(m.status, 'available') <> 'requested'
			AND (toLower(m.name) CONTAINS toLower($query)
				OR toLower(coalesce(m.description, '')) CONTAINS toLower($query)
				OR toLower(coalesce(m.category, '')) CONTAINS toLower($query))
		RETURN m.id AS id, m.name AS name, m.category AS category,
			m.description AS description, m.status AS status, 0.0 AS score
		ORDER BY m.name
		LIMIT $limit
	`

	// Ghost demand node: records that a buyer searched for a material nobody supplies.
	CaptureDemandQuery = `
		MATCH (c:Company {id: $company_id})
		MERGE (m:WasteMaterial {name: $name})
		ON CREATE SET m.id = $material_id, m.status = 'requested', m.created_at = $requested_at
		MERGE (c)-[s:IS_SEEKING]->(m)
		SET s.requested_at = $requested_at
		RETURN m.id AS id, m.name AS name, m.status AS status
	`
)
