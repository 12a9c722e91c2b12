package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/buywatch/internal/core/domain"
)

func TestCursorRepo(t *testing.T) {
	db := openTestDB(t)
	repo := NewCursorRepo(db)
	ctx := context.Background()

	c, err := repo.Get(ctx, domain.ChainSolana)
	require.NoError(t, err)
	assert.Nil(t, c)

	require.NoError(t, repo.Advance(ctx, domain.ChainSolana, 100))
	require.NoError(t, repo.Advance(ctx, domain.ChainSolana, 90))

	c, err = repo.Get(ctx, domain.ChainSolana)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, uint64(100), c.Height, "advance never moves backward")

	require.NoError(t, repo.Reset(ctx, domain.ChainSolana, 50))
	c, err = repo.Get(ctx, domain.ChainSolana)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), c.Height)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRegistryRepo_SaveReplaces(t *testing.T) {
	db := openTestDB(t)
	repo := NewRegistryRepo(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	token := domain.TrackedToken{Chain: domain.ChainEVMMainnet, Address: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", Symbol: "ALP"}
	sub := func(ch string, min int64) domain.Subscription {
		return domain.Subscription{Chain: token.Chain, Token: token.Address, Channel: ch, MinUSD: decimal.NewFromInt(min), CreatedAt: now}
	}

	require.NoError(t, repo.SaveRegistry(ctx, []domain.TokenSubscriptions{
		{Token: token, Subscriptions: []domain.Subscription{sub("@a", 10), sub("@b", 20)}},
	}))
	require.NoError(t, repo.SaveRegistry(ctx, []domain.TokenSubscriptions{
		{Token: token, Subscriptions: []domain.Subscription{sub("@b", 25)}},
	}))

	got, err := repo.LoadRegistry(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Len(t, got[0].Subscriptions, 1)
	assert.Equal(t, "@b", got[0].Subscriptions[0].Channel)
	assert.True(t, decimal.NewFromInt(25).Equal(got[0].Subscriptions[0].MinUSD))

	require.NoError(t, repo.SaveRegistry(ctx, nil))
	got, err = repo.LoadRegistry(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDB_HealthAndVersion(t *testing.T) {
	ctx := context.Background()
	for _, driver := range []string{"pgx", "postgres"} {
		t.Run(driver, func(t *testing.T) {
			db := openTestDBWith(t, driver)
			require.NoError(t, db.Health(ctx))

			version, err := MigrationVersion(ctx, db)
			require.NoError(t, err)
			assert.Positive(t, version)
		})
	}
}

func TestCursorRepo_SurvivesReconnect(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, NewCursorRepo(db).Reset(ctx, domain.ChainEVMMainnet, 1234))

	again, err := NewDB(ctx, Config{URL: testDSN(t)})
	require.NoError(t, err)
	defer func() { _ = again.Close() }()

	c, err := NewCursorRepo(again).Get(ctx, domain.ChainEVMMainnet)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, uint64(1234), c.Height)
}
