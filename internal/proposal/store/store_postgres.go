package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"custodia/internal/proposal/models"
	id "custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
	txcontext "custodia/pkg/platform/tx"
)

// Schema creates the proposals table. Votes are a JSONB map from party to
// side; the composite primary key mirrors the per-registry sequence.
const Schema = `
CREATE TABLE IF NOT EXISTS proposals (
    registry_id UUID    NOT NULL,
    seq         BIGINT  NOT NULL,
    proposer    TEXT    NOT NULL,
    recipient   TEXT    NOT NULL,
    amount      BIGINT  NOT NULL CHECK (amount > 0),
    memo        TEXT    NOT NULL DEFAULT '',
    votes       JSONB   NOT NULL DEFAULT '{}'::jsonb,
    status      TEXT    NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL,
    executed_at TIMESTAMPTZ,
    PRIMARY KEY (registry_id, seq)
);
`

// PostgresStore persists proposals in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the table if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("create proposals schema: %w", err)
	}
	return nil
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) q(ctx context.Context) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Create(ctx context.Context, p *models.Proposal) error {
	votes, err := marshalVotes(p.Votes)
	if err != nil {
		return err
	}
	_, err = s.q(ctx).ExecContext(ctx, `
        INSERT INTO proposals (registry_id, seq, proposer, recipient, amount, memo, votes, status, created_at, executed_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.Registry.String(), p.Seq, p.Proposer.String(), p.Recipient.String(),
		p.Amount, p.Memo, votes, string(p.Status), p.CreatedAt, p.ExecutedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert proposal: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByKey(ctx context.Context, key id.ProposalKey) (*models.Proposal, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
        SELECT registry_id, seq, proposer, recipient, amount, memo, votes, status, created_at, executed_at
        FROM proposals WHERE registry_id = $1 AND seq = $2`,
		key.Registry.String(), key.Seq,
	)
	return scanProposal(row)
}

func (s *PostgresStore) Update(ctx context.Context, p *models.Proposal) error {
	votes, err := marshalVotes(p.Votes)
	if err != nil {
		return err
	}
	res, err := s.q(ctx).ExecContext(ctx, `
        UPDATE proposals
        SET votes = $1, status = $2, executed_at = $3
        WHERE registry_id = $4 AND seq = $5`,
		votes, string(p.Status), p.ExecutedAt, p.Registry.String(), p.Seq,
	)
	if err != nil {
		return fmt.Errorf("update proposal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update proposal: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListByRegistry(ctx context.Context, registryID id.RegistryID) ([]*models.Proposal, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
        SELECT registry_id, seq, proposer, recipient, amount, memo, votes, status, created_at, executed_at
        FROM proposals WHERE registry_id = $1 ORDER BY seq`,
		registryID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()

	var out []*models.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProposal(row rowScanner) (*models.Proposal, error) {
	var (
		p          models.Proposal
		registryID string
		proposer   string
		recipient  string
		votes      []byte
		status     string
		executedAt sql.NullTime
	)
	err := row.Scan(&registryID, &p.Seq, &proposer, &recipient, &p.Amount, &p.Memo, &votes, &status, &p.CreatedAt, &executedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan proposal: %w", err)
	}

	if p.Registry, err = id.ParseRegistryID(registryID); err != nil {
		return nil, fmt.Errorf("scan proposal: %w", err)
	}
	if p.Proposer, err = id.ParsePartyID(proposer); err != nil {
		return nil, fmt.Errorf("scan proposal: %w", err)
	}
	if p.Recipient, err = id.ParsePartyID(recipient); err != nil {
		return nil, fmt.Errorf("scan proposal: %w", err)
	}
	if p.Votes, err = unmarshalVotes(votes); err != nil {
		return nil, err
	}
	p.Status = models.Status(status)
	if executedAt.Valid {
		t := executedAt.Time.UTC()
		p.ExecutedAt = &t
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

func marshalVotes(votes map[id.PartyID]models.Vote) ([]byte, error) {
	flat := make(map[string]string, len(votes))
	for party, vote := range votes {
		flat[party.String()] = string(vote)
	}
	b, err := json.Marshal(flat)
	if err != nil {
		return nil, fmt.Errorf("marshal votes: %w", err)
	}
	return b, nil
}

func unmarshalVotes(raw []byte) (map[id.PartyID]models.Vote, error) {
	var flat map[string]string
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, fmt.Errorf("unmarshal votes: %w", err)
	}
	votes := make(map[id.PartyID]models.Vote, len(flat))
	for party, vote := range flat {
		pid, err := id.ParsePartyID(party)
		if err != nil {
			return nil, fmt.Errorf("unmarshal votes: %w", err)
		}
		votes[pid] = models.Vote(vote)
	}
	return votes, nil
}
