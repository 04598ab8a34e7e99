package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	neo4j "github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jStore keeps one node label per table. Neo4j properties are flat, so
// the document is stored as a JSON string property next to the id.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
}

func NewNeo4jStore(ctx context.Context, uri, username, password, database string) (*Neo4jStore, error) {
	if uri == "" {
		return nil, errors.New("neo4j uri is required")
	}
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, err
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, err
	}
	return &Neo4jStore{driver: driver, database: database}, nil
}

// labelFor validates the table name before it is interpolated into Cypher.
// Labels cannot be parameterized.
func labelFor(table string) (string, error) {
	if table == "" {
		return "", errors.New("table name is required")
	}
	for _, r := range table {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' {
			continue
		}
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

func (s *Neo4jStore) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: s.database,
	})
}

func (s *Neo4jStore) Insert(ctx context.Context, table string, record Record) (Record, error) {
	label, err := labelFor(table)
	if err != nil {
		return nil, err
	}
	stored := cloneRecord(record)
	id, _ := stored["id"].(string)
	if id == "" {
		id = uuid.NewString()
		stored["id"] = id
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return nil, err
	}

	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	query := fmt.Sprintf("MERGE (n:%s {id: $id}) SET n.data = $data", label)
	if _, err := session.Run(ctx, query, map[string]any{"id": id, "data": string(data)}); err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *Neo4jStore) Get(ctx context.Context, table, id string) (Record, error) {
	label, err := labelFor(table)
	if err != nil {
		return nil, err
	}

	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	query := fmt.Sprintf("MATCH (n:%s {id: $id}) RETURN n.data AS data", label)
	result, err := session.Run(ctx, query, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return nil, err
		}
		return nil, notFound(table, id)
	}
	raw, _ := result.Record().Get("data")
	text, _ := raw.(string)
	return decodeRecord([]byte(text))
}

func (s *Neo4jStore) Select(ctx context.Context, table string, filter Record) ([]Record, error) {
	label, err := labelFor(table)
	if err != nil {
		return nil, err
	}

	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	query := fmt.Sprintf("MATCH (n:%s) RETURN n.data AS data ORDER BY n.id", label)
	result, err := session.Run(ctx, query, nil)
	if err != nil {
		return nil, err
	}

	var out []Record
	for result.Next(ctx) {
		raw, _ := result.Record().Get("data")
		text, _ := raw.(string)
		rec, err := decodeRecord([]byte(text))
		if err != nil {
			return nil, err
		}
		if matchesFilter(rec, filter) {
			out = append(out, rec)
		}
	}
	return out, result.Err()
}

func (s *Neo4jStore) Update(ctx context.Context, table, id string, changes Record) (Record, error) {
	existing, err := s.Get(ctx, table, id)
	if err != nil {
		return nil, err
	}
	for k, v := range changes {
		if k == "id" {
			continue
		}
		existing[k] = v
	}
	return s.Insert(ctx, table, existing)
}

func (s *Neo4jStore) Delete(ctx context.Context, table, id string) error {
	label, err := labelFor(table)
	if err != nil {
		return err
	}

	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	query := fmt.Sprintf("MATCH (n:%s {id: $id}) DELETE n RETURN count(n) AS removed", label)
	result, err := session.Run(ctx, query, map[string]any{"id": id})
	if err != nil {
		return err
	}
	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return err
		}
		return notFound(table, id)
	}
	raw, _ := result.Record().Get("removed")
	if count, _ := raw.(int64); count == 0 {
		return notFound(table, id)
	}
	return nil
}

// Close shuts down the underlying driver.
func (s *Neo4jStore) Close(ctx context.Context) error {
	if s == nil || s.driver == nil {
		return nil
	}
	return s.driver.Close(ctx)
}

var _ Store = (*Neo4jStore)(nil)
