package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"custodia/internal/registry/models"
	id "custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
	txcontext "custodia/pkg/platform/tx"
)

// Schema creates the registries table.
const Schema = `
CREATE TABLE IF NOT EXISTS registries (
	id           UUID PRIMARY KEY,
	owners       TEXT[] NOT NULL,
	threshold    INT NOT NULL CHECK (threshold >= 1),
	proposal_seq BIGINT NOT NULL DEFAULT 0,
	authority    TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
);
`

// PostgresStore persists registries in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema applies the registry schema.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply registry schema: %w", err)
	}
	return nil
}

type dbQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) querier(ctx context.Context) dbQuerier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Create(ctx context.Context, reg *models.Registry) error {
	_, err := s.querier(ctx).ExecContext(ctx, `
		INSERT INTO registries (id, owners, threshold, proposal_seq, authority, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		reg.ID.String(),
		pq.Array(partyStrings(reg.Owners)),
		reg.Threshold,
		int64(reg.ProposalSeq),
		reg.Authority.String(),
		reg.CreatedAt,
		reg.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert registry: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, registryID id.RegistryID) (*models.Registry, error) {
	var (
		reg       models.Registry
		rawID     string
		owners    []string
		seq       int64
		authority string
	)
	err := s.querier(ctx).QueryRowContext(ctx, `
		SELECT id, owners, threshold, proposal_seq, authority, created_at, updated_at
		FROM registries WHERE id = $1
	`, registryID.String()).Scan(
		&rawID, pq.Array(&owners), &reg.Threshold, &seq, &authority, &reg.CreatedAt, &reg.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query registry: %w", err)
	}

	parsedID, err := id.ParseRegistryID(rawID)
	if err != nil {
		return nil, fmt.Errorf("corrupt registry id %q: %w", rawID, err)
	}
	reg.ID = parsedID
	reg.ProposalSeq = uint64(seq)
	reg.Authority = id.PartyID(authority)
	reg.Owners = make([]id.PartyID, len(owners))
	for i, o := range owners {
		reg.Owners[i] = id.PartyID(o)
	}
	return &reg, nil
}

func (s *PostgresStore) Update(ctx context.Context, reg *models.Registry) error {
	res, err := s.querier(ctx).ExecContext(ctx, `
		UPDATE registries
		SET owners = $2, threshold = $3, authority = $4, updated_at = $5
		WHERE id = $1
	`,
		reg.ID.String(),
		pq.Array(partyStrings(reg.Owners)),
		reg.Threshold,
		reg.Authority.String(),
		reg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update registry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update registry: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) AllocateSeq(ctx context.Context, registryID id.RegistryID) (uint64, error) {
	var seq int64
	err := s.querier(ctx).QueryRowContext(ctx, `
		UPDATE registries SET proposal_seq = proposal_seq + 1
		WHERE id = $1
		RETURNING proposal_seq
	`, registryID.String()).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, sentinel.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("allocate proposal seq: %w", err)
	}
	return uint64(seq), nil
}

func partyStrings(parties []id.PartyID) []string {
	out := make([]string, len(parties))
	for i, p := range parties {
		out[i] = p.String()
	}
	return out
}
