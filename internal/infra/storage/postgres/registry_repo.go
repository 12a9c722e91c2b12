package postgres

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/vietddude/buywatch/internal/core/domain"
)

// RegistryRepo implements storage.RegistryStore using PostgreSQL.
type RegistryRepo struct {
	db *DB
}

// NewRegistryRepo creates a new PostgreSQL registry repository.
func NewRegistryRepo(db *DB) *RegistryRepo {
	return &RegistryRepo{db: db}
}

// LoadRegistry reads all tokens and their subscriptions.
func (r *RegistryRepo) LoadRegistry(ctx context.Context) ([]domain.TokenSubscriptions, error) {
	var tokens []domain.TrackedToken
	if err := r.db.SelectContext(ctx, &tokens,
		`SELECT chain, address, name, symbol FROM tracked_tokens ORDER BY chain, address`); err != nil {
		return nil, fmt.Errorf("failed to load tokens: %w", err)
	}

	var subs []domain.Subscription
	if err := r.db.SelectContext(ctx, &subs,
		`SELECT chain, token, channel, min_usd, created_at FROM subscriptions ORDER BY chain, token, created_at`); err != nil {
		return nil, fmt.Errorf("failed to load subscriptions: %w", err)
	}

	byToken := make(map[string][]domain.Subscription, len(tokens))
	for _, s := range subs {
		key := string(s.Chain) + ":" + s.Token
		byToken[key] = append(byToken[key], s)
	}

	out := make([]domain.TokenSubscriptions, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, domain.TokenSubscriptions{Token: t, Subscriptions: byToken[t.Key()]})
	}
	return out, nil
}

// SaveRegistry makes the tables match entries in one transaction.
func (r *RegistryRepo) SaveRegistry(ctx context.Context, entries []domain.TokenSubscriptions) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	tokenKeys := make([]string, 0, len(entries))
	subKeys := make([]string, 0, len(entries))
	for _, e := range entries {
		tokenKeys = append(tokenKeys, e.Token.Key())
		for _, s := range e.Subscriptions {
			subKeys = append(subKeys, e.Token.Key()+":"+s.Channel)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM tracked_tokens WHERE NOT (chain || ':' || address = ANY($1))`,
		pq.Array(tokenKeys)); err != nil {
		return fmt.Errorf("failed to prune tokens: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE NOT (chain || ':' || token || ':' || channel = ANY($1))`,
		pq.Array(subKeys)); err != nil {
		return fmt.Errorf("failed to prune subscriptions: %w", err)
	}

	for _, e := range entries {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO tracked_tokens (chain, address, name, symbol)
			VALUES (:chain, :address, :name, :symbol)
			ON CONFLICT (chain, address) DO UPDATE SET name = EXCLUDED.name, symbol = EXCLUDED.symbol`,
			e.Token); err != nil {
			return fmt.Errorf("failed to upsert token %s: %w", e.Token.Key(), err)
		}
		for _, s := range e.Subscriptions {
			if _, err := tx.NamedExecContext(ctx, `
				INSERT INTO subscriptions (chain, token, channel, min_usd, created_at)
				VALUES (:chain, :token, :channel, :min_usd, :created_at)
				ON CONFLICT (chain, token, channel) DO UPDATE SET min_usd = EXCLUDED.min_usd`,
				s); err != nil {
				return fmt.Errorf("failed to upsert subscription %s/%s: %w", e.Token.Key(), s.Channel, err)
			}
		}
	}

	return tx.Commit()
}
