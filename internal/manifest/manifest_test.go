package manifest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/civicband/clerk-sub001/internal/layout"
)

func TestAppendAndRead(t *testing.T) {
	l := layout.New(t.TempDir(), "a.civic.band")

	entry := Entry{
		Subdomain:    "a.civic.band",
		RunID:        "a.civic.band_1700000000_abc123",
		PDFPath:      "/pdfs/council/2024-01-02.pdf",
		ErrorType:    "permanent_per_document",
		ErrorMessage: "both ocr backends failed",
		Timestamp:    time.Unix(1700000000, 0).UTC(),
	}
	require.NoError(t, Append(l, entry.RunID, entry))
	require.NoError(t, Append(l, entry.RunID, entry))

	entries, err := Read(l, entry.RunID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, entry.PDFPath, entries[0].PDFPath)
}

func TestRead_NoManifestYieldsEmptyNotError(t *testing.T) {
	l := layout.New(t.TempDir(), "a.civic.band")

	entries, err := Read(l, "nonexistent-run")
	require.NoError(t, err)
	require.Empty(t, entries)
}
