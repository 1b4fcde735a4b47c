package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/civicband/clerk-sub001/internal/model"
)

func TestInMemory_EnqueueAndClaim(t *testing.T) {
	q := NewInMemory()
	ctx := context.Background()

	job := model.Job{ID: "j1", Type: model.JobFetch, Subdomain: "a.civic.band", Priority: model.PriorityNormal}
	require.NoError(t, q.Enqueue(ctx, job))

	n, err := q.Length(ctx, "fetch")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	claimed, ok, err := q.Claim(ctx, []string{"fetch"}, "worker-1", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "j1", claimed.ID)
	require.Equal(t, model.JobRunning, claimed.Status)

	require.NoError(t, q.Complete(ctx, "j1"))
	got, ok, err := q.Get(ctx, "j1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.JobCompleted, got.Status)
}

func TestInMemory_HighPriorityPreemptsAtClaim(t *testing.T) {
	q := NewInMemory()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		job := model.Job{ID: itoaTest(i), Type: model.JobFetch, Priority: model.PriorityNormal}
		require.NoError(t, q.Enqueue(ctx, job))
	}
	urgent := model.Job{ID: "urgent", Type: model.JobFetch, Priority: model.PriorityHigh}
	require.NoError(t, q.Enqueue(ctx, urgent))

	claimed, ok, err := q.Claim(ctx, []string{HighQueueName, "fetch"}, "worker-1", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "urgent", claimed.ID)
}

func TestInMemory_DependsOnFanIn(t *testing.T) {
	q := NewInMemory()
	ctx := context.Background()

	var ocrIDs []string
	for i := 0; i < 3; i++ {
		id := "ocr-" + itoaTest(i)
		ocrIDs = append(ocrIDs, id)
		require.NoError(t, q.Enqueue(ctx, model.Job{ID: id, Type: model.JobOCRPage, Priority: model.PriorityNormal}))
	}

	coordinator := model.Job{ID: "coord", Type: model.JobOCRCoordinator, Priority: model.PriorityNormal, DependsOn: ocrIDs}
	require.NoError(t, q.Enqueue(ctx, coordinator))

	n, err := q.Length(ctx, "compilation")
	require.NoError(t, err)
	require.Equal(t, 0, n, "coordinator must stay deferred until all OCR jobs are terminal")

	for i, id := range ocrIDs {
		claimed, ok, err := q.Claim(ctx, []string{"ocr"}, "w", time.Second)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, id, claimed.ID)
		if i == len(ocrIDs)-1 {
			// last one fails -- dependents must still be released.
			require.NoError(t, q.Fail(ctx, id, errTest))
		} else {
			require.NoError(t, q.Complete(ctx, id))
		}
	}

	n, err = q.Length(ctx, "compilation")
	require.NoError(t, err)
	require.Equal(t, 1, n, "coordinator releases once all deps are terminal, even with one failure")

	claimed, ok, err := q.Claim(ctx, []string{"compilation"}, "w", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "coord", claimed.ID)
}

func TestInMemory_ClaimTimesOutWhenEmpty(t *testing.T) {
	q := NewInMemory()
	ctx := context.Background()

	start := time.Now()
	_, ok, err := q.Claim(ctx, []string{"fetch"}, "w", 100*time.Millisecond)
	require.NoError(t, err)
	require.False(t, ok)
	require.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

var errTest = &testError{"boom"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }

func itoaTest(n int) string {
	digits := "0123456789"
	if n == 0 {
		return "0"
	}
	var buf []byte
	for n > 0 {
		buf = append([]byte{digits[n%10]}, buf...)
		n /= 10
	}
	return string(buf)
}
