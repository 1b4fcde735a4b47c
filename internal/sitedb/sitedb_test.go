package sitedb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUpsertAndSearch(t *testing.T) {
	ctx := context.Background()
	db, err := Open(filepath.Join(t.TempDir(), "meetings.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.UpsertPage(ctx, Page{
		Fingerprint: "abc123def456",
		Kind:        KindMinutes,
		Meeting:     "council",
		Date:        "2024-01-02",
		Page:        1,
		Text:        "the budget was approved unanimously",
	}))

	n, err := db.Count(ctx, KindMinutes)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	results, err := db.Search(ctx, KindMinutes, "budget", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "abc123def456", results[0].Fingerprint)
}

func TestUpsertPage_IdempotentOnSameFingerprint(t *testing.T) {
	ctx := context.Background()
	db, err := Open(filepath.Join(t.TempDir(), "meetings.db"))
	require.NoError(t, err)
	defer db.Close()

	page := Page{Fingerprint: "fp1", Kind: KindAgendas, Meeting: "planning", Date: "2024-02-01", Page: 1, Text: "first draft"}
	require.NoError(t, db.UpsertPage(ctx, page))

	page.Text = "revised text"
	require.NoError(t, db.UpsertPage(ctx, page))

	n, err := db.Count(ctx, KindAgendas)
	require.NoError(t, err)
	require.Equal(t, 1, n, "re-upserting the same fingerprint must not create a second row")
}

func TestSetExtraction_RequiresExistingRow(t *testing.T) {
	ctx := context.Background()
	db, err := Open(filepath.Join(t.TempDir(), "meetings.db"))
	require.NoError(t, err)
	defer db.Close()

	err = db.SetExtraction(ctx, KindMinutes, "does-not-exist", `{"entities":[]}`)
	require.Error(t, err)

	require.NoError(t, db.UpsertPage(ctx, Page{Fingerprint: "fp2", Kind: KindMinutes, Meeting: "council", Date: "2024-01-02", Page: 1, Text: "hello"}))
	require.NoError(t, db.SetExtraction(ctx, KindMinutes, "fp2", `{"entities":["budget"]}`))
}
