package payments

import (
	"context"
	"errors"
	"fmt"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const schema = `
CREATE TABLE IF NOT EXISTS payments (
	id                      TEXT PRIMARY KEY,
	seq                     BIGSERIAL,
	amount                  NUMERIC NOT NULL,
	currency                TEXT NOT NULL,
	status                  TEXT NOT NULL,
	payer_name              TEXT NOT NULL DEFAULT '',
	payer_email             TEXT NOT NULL DEFAULT '',
	account                 TEXT NOT NULL DEFAULT '',
	metadata                JSONB,
	provider_transaction_id TEXT NOT NULL DEFAULT '',
	provider_response       TEXT NOT NULL DEFAULT '',
	created_at              TIMESTAMPTZ NOT NULL,
	updated_at              TIMESTAMPTZ NOT NULL,
	version                 BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS payment_transitions (
	payment_id  TEXT NOT NULL,
	from_status TEXT NOT NULL,
	to_status   TEXT NOT NULL,
	detail      TEXT NOT NULL DEFAULT '',
	occurred_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS payment_transitions_payment_id_idx ON payment_transitions (payment_id);
`

const selectColumns = `id, amount::text, currency, status, payer_name, payer_email, account,
	COALESCE(metadata, '{}'::jsonb), provider_transaction_id, provider_response, created_at, updated_at, version`

type PgStore struct {
	dbpool *pgxpool.Pool
}

func NewPgStore(dbpool *pgxpool.Pool) *PgStore {
	return &PgStore{dbpool: dbpool}
}

func (s *PgStore) EnsureSchema(ctx context.Context) error {
	_, err := s.dbpool.Exec(ctx, schema)
	return err
}

func (s *PgStore) Create(ctx context.Context, p *Payment) error {
	tag, err := s.dbpool.Exec(ctx, `
		INSERT INTO payments (id, amount, currency, status, payer_name, payer_email, account, metadata,
			provider_transaction_id, provider_response, created_at, updated_at, version)
		VALUES ($1, $2::numeric, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING`,
		p.ID, p.Amount.String(), p.Currency, p.Status, p.PayerName, p.PayerEmail, p.Account, p.Metadata,
		p.ProviderTransactionID, p.ProviderResponse, p.CreatedAt, p.UpdatedAt, p.Version,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyExists
	}
	return nil
}

func (s *PgStore) Get(ctx context.Context, id string) (*Payment, error) {
	row := s.dbpool.QueryRow(ctx, `SELECT `+selectColumns+` FROM payments WHERE id = $1`, id)
	p, err := scanPayment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (s *PgStore) List(ctx context.Context) ([]*Payment, error) {
	rows, err := s.dbpool.Query(ctx, `SELECT `+selectColumns+` FROM payments ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var out []*Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PgStore) Update(ctx context.Context, p *Payment) error {
	tag, err := s.dbpool.Exec(ctx, `
		UPDATE payments SET amount = $3::numeric, currency = $4, status = $5, payer_name = $6, payer_email = $7,
			account = $8, metadata = $9, provider_transaction_id = $10, provider_response = $11,
			updated_at = $12, version = version + 1
		WHERE id = $1 AND version = $2`,
		p.ID, p.Version, p.Amount.String(), p.Currency, p.Status, p.PayerName, p.PayerEmail,
		p.Account, p.Metadata, p.ProviderTransactionID, p.ProviderResponse, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if tag.RowsAffected() == 1 {
		p.Version++
		return nil
	}

	var exists bool
	if err := s.dbpool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payments WHERE id = $1)`, p.ID).Scan(&exists); err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrVersionConflict
}

func (s *PgStore) Delete(ctx context.Context, id string) error {
	_, err := s.dbpool.Exec(ctx, `DELETE FROM payments WHERE id = $1`, id)
	return err
}

// WriteTransitions appends a batch of transitions to the audit table.
func (s *PgStore) WriteTransitions(ctx context.Context, batch []Transition) error {
	if len(batch) == 1 {
		t := batch[0]
		_, err := s.dbpool.Exec(ctx,
			"INSERT INTO payment_transitions (payment_id, from_status, to_status, detail, occurred_at) VALUES ($1, $2, $3, $4, $5)",
			t.PaymentID, t.From, t.To, t.Detail, t.OccurredAt,
		)
		return err
	}

	_, err := s.dbpool.CopyFrom(
		ctx,
		pgx.Identifier{"payment_transitions"},
		[]string{"payment_id", "from_status", "to_status", "detail", "occurred_at"},
		pgx.CopyFromSlice(len(batch), func(i int) ([]any, error) {
			t := batch[i]
			return []any{t.PaymentID, string(t.From), string(t.To), t.Detail, t.OccurredAt}, nil
		}),
	)
	return err
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var (
		p      Payment
		amount string
		status string
	)
	err := row.Scan(&p.ID, &amount, &p.Currency, &status, &p.PayerName, &p.PayerEmail, &p.Account,
		&p.Metadata, &p.ProviderTransactionID, &p.ProviderResponse, &p.CreatedAt, &p.UpdatedAt, &p.Version)
	if err != nil {
		return nil, err
	}

	p.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("payment %s: bad amount %q: %w", p.ID, amount, err)
	}
	p.Status = Status(status)
	if len(p.Metadata) == 0 {
		p.Metadata = nil
	}
	return &p, nil
}
