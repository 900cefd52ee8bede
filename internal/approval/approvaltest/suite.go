// Package approvaltest is a conformance suite run against every approval.Store.
package approvaltest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/kysafety/internal/approval"
	"github.com/yourorg/kysafety/internal/errs"
)

// Run exercises store semantics. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) approval.Store) {
	t.Run("RoundTrip", func(t *testing.T) { testRoundTrip(t, newStore(t)) })
	t.Run("IdempotentApprove", func(t *testing.T) { testIdempotentApprove(t, newStore(t)) })
	t.Run("UnknownEntry", func(t *testing.T) { testUnknownEntry(t, newStore(t)) })
	t.Run("ValidationBeforeWrite", func(t *testing.T) { testValidation(t, newStore(t)) })
	t.Run("DeleteGuard", func(t *testing.T) { testDeleteGuard(t, newStore(t)) })
	t.Run("LogSurvivesDelete", func(t *testing.T) { testLogSurvivesDelete(t, newStore(t)) })
	t.Run("DuplicateEntryID", func(t *testing.T) { testDuplicateEntryID(t, newStore(t)) })
	t.Run("ConcurrentTransitions", func(t *testing.T) { testConcurrent(t, newStore(t)) })
}

func seed(t *testing.T, store approval.Store) approval.KyEntry {
	t.Helper()
	entry, err := store.CreateEntry(context.Background(), approval.KyEntry{ProjectID: "proj-1", Title: "足場点検"})
	require.NoError(t, err)
	require.NotEmpty(t, entry.ID)
	require.False(t, entry.IsApproved)
	return entry
}

func transition(t *testing.T, store approval.Store, entry approval.KyEntry, action approval.Action, actor string) approval.TransitionResult {
	t.Helper()
	res, err := store.Transition(context.Background(), approval.TransitionInput{
		EntryID:   entry.ID,
		ProjectID: entry.ProjectID,
		Action:    action,
		ActorID:   &actor,
	})
	require.NoError(t, err)
	return res
}

func testRoundTrip(t *testing.T, store approval.Store) {
	ctx := context.Background()
	entry := seed(t, store)

	assert.True(t, transition(t, store, entry, approval.ActionApprove, "sv-1").IsApproved())
	assert.False(t, transition(t, store, entry, approval.ActionUnapprove, "sv-2").IsApproved())
	assert.True(t, transition(t, store, entry, approval.ActionApprove, "sv-1").IsApproved())

	got, err := store.GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.True(t, got.IsApproved)

	records, err := store.ListLog(ctx, entry.ID)
	require.NoError(t, err)
	require.Len(t, records, 3)
	wantActions := []approval.Action{approval.ActionApprove, approval.ActionUnapprove, approval.ActionApprove}
	for i, rec := range records {
		assert.Equal(t, wantActions[i], rec.Action, "record %d", i)
		assert.Equal(t, entry.ID, rec.KyEntryID)
		assert.Equal(t, entry.ProjectID, rec.ProjectID)
		if i > 0 {
			assert.True(t, rec.CreatedAt.After(records[i-1].CreatedAt), "record %d timestamp not increasing", i)
		}
	}
	require.NotNil(t, records[1].ActorID)
	assert.Equal(t, "sv-2", *records[1].ActorID)
	assert.NoError(t, approval.VerifyChain(records))
}

func testIdempotentApprove(t *testing.T, store approval.Store) {
	ctx := context.Background()
	entry := seed(t, store)

	transition(t, store, entry, approval.ActionApprove, "sv-1")
	res := transition(t, store, entry, approval.ActionApprove, "sv-1")
	assert.True(t, res.IsApproved())

	records, err := store.ListLog(ctx, entry.ID)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func testUnknownEntry(t *testing.T, store approval.Store) {
	ctx := context.Background()
	entry := seed(t, store)

	_, err := store.Transition(ctx, approval.TransitionInput{EntryID: "missing", ProjectID: "proj-1", Action: approval.ActionApprove})
	assert.ErrorIs(t, err, approval.ErrEntryNotFound)

	_, err = store.Transition(ctx, approval.TransitionInput{EntryID: entry.ID, ProjectID: "other-project", Action: approval.ActionApprove})
	assert.ErrorIs(t, err, approval.ErrEntryNotFound)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))

	_, err = store.GetEntry(ctx, "missing")
	assert.ErrorIs(t, err, approval.ErrEntryNotFound)

	records, err := store.ListLog(ctx, entry.ID)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func testValidation(t *testing.T, store approval.Store) {
	ctx := context.Background()
	entry := seed(t, store)

	for _, in := range []approval.TransitionInput{
		{EntryID: entry.ID, ProjectID: entry.ProjectID, Action: "approved"},
		{EntryID: entry.ID, ProjectID: entry.ProjectID, Action: ""},
		{EntryID: "", ProjectID: entry.ProjectID, Action: approval.ActionApprove},
		{EntryID: entry.ID, ProjectID: " ", Action: approval.ActionApprove},
	} {
		_, err := store.Transition(ctx, in)
		require.Error(t, err)
		assert.Equal(t, errs.KindValidation, errs.KindOf(err), "%+v", in)
	}

	records, err := store.ListLog(ctx, entry.ID)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func testDeleteGuard(t *testing.T, store approval.Store) {
	ctx := context.Background()
	entry := seed(t, store)
	transition(t, store, entry, approval.ActionApprove, "sv-1")

	err := store.DeleteEntry(ctx, entry.ID)
	require.ErrorIs(t, err, approval.ErrApprovedEntryImmutable)
	assert.Equal(t, errs.KindInvariant, errs.KindOf(err))
	_, err = store.GetEntry(ctx, entry.ID)
	require.NoError(t, err, "approved entry must survive a delete attempt")

	transition(t, store, entry, approval.ActionUnapprove, "sv-1")
	require.NoError(t, store.DeleteEntry(ctx, entry.ID))
	_, err = store.GetEntry(ctx, entry.ID)
	assert.ErrorIs(t, err, approval.ErrEntryNotFound)

	assert.ErrorIs(t, store.DeleteEntry(ctx, entry.ID), approval.ErrEntryNotFound)
}

func testLogSurvivesDelete(t *testing.T, store approval.Store) {
	ctx := context.Background()
	entry := seed(t, store)
	transition(t, store, entry, approval.ActionApprove, "sv-1")
	transition(t, store, entry, approval.ActionUnapprove, "sv-1")
	require.NoError(t, store.DeleteEntry(ctx, entry.ID))

	records, err := store.ListLog(ctx, entry.ID)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func testDuplicateEntryID(t *testing.T, store approval.Store) {
	ctx := context.Background()
	entry := seed(t, store)
	transition(t, store, entry, approval.ActionApprove, "sv-1")

	_, err := store.CreateEntry(ctx, approval.KyEntry{ID: entry.ID, ProjectID: entry.ProjectID, Title: "上書き"})
	require.ErrorIs(t, err, approval.ErrEntryExists)
	assert.Equal(t, errs.KindInvariant, errs.KindOf(err))

	got, err := store.GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.True(t, got.IsApproved, "existing entry must keep its state")
	assert.Equal(t, "足場点検", got.Title)
	assert.ErrorIs(t, store.DeleteEntry(ctx, entry.ID), approval.ErrApprovedEntryImmutable)
}

func testConcurrent(t *testing.T, store approval.Store) {
	ctx := context.Background()
	entry := seed(t, store)

	const workers = 16
	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			action := approval.ActionApprove
			if i%2 == 1 {
				action = approval.ActionUnapprove
			}
			actor := fmt.Sprintf("actor-%d", i%2)
			_, err := store.Transition(ctx, approval.TransitionInput{
				EntryID: entry.ID, ProjectID: entry.ProjectID, Action: action, ActorID: &actor,
			})
			errCh <- err
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}

	got, err := store.GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	records, err := store.ListLog(ctx, entry.ID)
	require.NoError(t, err)
	require.Len(t, records, workers)

	latest := records[len(records)-1]
	assert.Equal(t, latest.Action == approval.ActionApprove, got.IsApproved, "latest log action disagrees with isApproved")
	assert.NoError(t, approval.VerifyChain(records))
}
