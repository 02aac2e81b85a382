package data

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mailrelay/internal/domain/model"
	"github.com/target/mailrelay/internal/testutil"
)

func TestPGStateRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewPGStateRepo(db, "")

		st, err := repo.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, model.Stats{}, st.Stats)

		want := testutil.DispatchStateFixture()
		require.NoError(t, repo.Save(ctx, want))
		want.IsRunning = true
		require.NoError(t, repo.Save(ctx, want), "second save must upsert")

		got, err := repo.Load(ctx)
		require.NoError(t, err)
		assert.True(t, got.IsRunning)
		assert.Equal(t, want.Stats, got.Stats)
		assert.Equal(t, want.SentRecipients, got.SentRecipients)

		require.NoError(t, repo.Clear(ctx))
		got, err = repo.Load(ctx)
		require.NoError(t, err)
		assert.False(t, got.IsRunning)
	})
}
