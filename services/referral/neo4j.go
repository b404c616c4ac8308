package referral

import (
	"context"
	"fmt"

	"smallbiznis-affiliate/pkg/graph"
	"smallbiznis-affiliate/services/account"

	"gorm.io/gorm"
)

const (
	cypherAccount = `MATCH (a:Affiliate {id: $id})
OPTIONAL MATCH (a)-[:REFERRED_BY]->(r:Affiliate)
RETURN a.id AS id, a.code AS code, r.id AS referrer_id
LIMIT 1`

	// cypherMirror replaces the referrer edge in one statement so a reader
	// never sees the affiliate detached between the delete and the link.
	cypherMirror = `MERGE (a:Affiliate {id: $id})
SET a.code = $code
WITH a
OPTIONAL MATCH (a)-[old:REFERRED_BY]->()
DELETE old
WITH DISTINCT a
FOREACH (ref IN CASE WHEN $referrer_id IS NULL THEN [] ELSE [$referrer_id] END |
  MERGE (r:Affiliate {id: ref})
  MERGE (a)-[:REFERRED_BY]->(r)
)`
)

// Neo4jSource reads the referral graph from (:Affiliate)-[:REFERRED_BY]->(:Affiliate).
// Only id, code and referrer are known to the graph; balances and status
// stay in the accounts table.
type Neo4jSource struct {
	client graph.Client
}

func NewNeo4jSource(client graph.Client) *Neo4jSource {
	return &Neo4jSource{client: client}
}

func (s *Neo4jSource) Account(ctx context.Context, id string) (*account.Account, error) {
	res, err := s.client.ExecuteRead(ctx, cypherAccount, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("read affiliate %s from graph: %w", id, err)
	}
	if len(res.Records) == 0 {
		return nil, nil
	}

	rec := res.Records[0]
	acc := &account.Account{ID: rec.String("id"), Code: rec.String("code")}
	if ref := rec.String("referrer_id"); ref != "" {
		acc.ReferrerID = &ref
	}
	return acc, nil
}

// WithTrx returns s unchanged; the graph is not part of the SQL transaction.
func (s *Neo4jSource) WithTrx(*gorm.DB) Source {
	return s
}

// Mirror writes acc and its referrer edge to the graph.
func (s *Neo4jSource) Mirror(ctx context.Context, acc account.Account) error {
	var referrerID any
	if acc.HasReferrer() {
		referrerID = *acc.ReferrerID
	}
	params := map[string]any{"id": acc.ID, "code": acc.Code, "referrer_id": referrerID}
	if _, err := s.client.ExecuteWrite(ctx, cypherMirror, params); err != nil {
		return fmt.Errorf("mirror affiliate %s: %w", acc.ID, err)
	}
	return nil
}
