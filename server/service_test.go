package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fieldOf(t *testing.T, err error) string {
	t.Helper()
	var opErr *OpError
	require.True(t, errors.As(err, &opErr), "expected *OpError, got %v", err)
	return opErr.Field
}

func Test_CreateCard_SetsOwnerAndDate(t *testing.T) {
	day := time.Date(2024, 3, 9, 17, 30, 0, 0, time.UTC)
	f := newFixture(t, WithClock(func() time.Time { return day }))

	card, err := f.svc.CreateCard(context.Background(), as(f.owner), CardInput{Title: "Write docs", Priority: "High"})

	require.NoError(t, err)
	assert.Equal(t, f.owner.ID, card.OwnerID)
	assert.Equal(t, "owner", card.OwnerName)
	assert.Equal(t, "owner@example.com", card.OwnerEmail)
	assert.Equal(t, "2024-03-09", card.Date.Format("2006-01-02"))
	assert.Equal(t, "High", card.Priority)
	assert.Empty(t, card.Status)
	assert.Empty(t, card.Comments)
}

func Test_CreateCard_Unauthenticated(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateCard(context.Background(), Identity{}, CardInput{Title: "Nope"})
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = f.svc.CreateCard(context.Background(), Identity{UserID: 9999}, CardInput{Title: "Ghost"})
	assert.ErrorIs(t, err, ErrUnauthenticated, "identity without a user row")

	cards, err := f.svc.ListCards(context.Background())
	require.NoError(t, err)
	assert.Empty(t, cards)
}

func Test_CreateCard_RejectsInvalidFields(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name  string
		in    CardInput
		field string
	}{
		{"missing title", CardInput{Description: "x"}, "title"},
		{"short title", CardInput{Title: "a"}, "title"},
		{"punctuation", CardInput{Title: "fix bug!"}, "title"},
		{"unknown status", CardInput{Title: "ok title", Status: "Blocked"}, "status"},
		{"lowercase status", CardInput{Title: "ok title", Status: "ongoing"}, "status"},
		{"unknown priority", CardInput{Title: "ok title", Priority: "Critical"}, "priority"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateCard(context.Background(), as(f.owner), tc.in)
			require.ErrorIs(t, err, ErrValidation)
			assert.Equal(t, tc.field, fieldOf(t, err))
		})
	}
	cards, err := f.svc.ListCards(context.Background())
	require.NoError(t, err)
	assert.Empty(t, cards, "rejected creates must not persist anything")
}

func Test_Ongoing_OnlyOneCardAtATime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.givenCard(t, f.owner, CardInput{Title: "Card A", Status: StatusOngoing})
	b := f.givenCard(t, f.owner, CardInput{Title: "Card B"})

	_, err := f.svc.UpdateCard(ctx, as(f.owner), b.ID, CardInput{Status: StatusOngoing})
	require.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "status", fieldOf(t, err))
	assert.Contains(t, err.Error(), msgOngoingExists)

	_, err = f.svc.CreateCard(ctx, as(f.other), CardInput{Title: "Card C", Status: StatusOngoing})
	assert.ErrorIs(t, err, ErrValidation)

	resaved, err := f.svc.UpdateCard(ctx, as(f.owner), a.ID, CardInput{Status: StatusOngoing, Description: "still going"})
	require.NoError(t, err, "re-saving the Ongoing card must not conflict with itself")
	assert.Equal(t, StatusOngoing, resaved.Status)
	assert.Equal(t, "still going", resaved.Description)

	_, err = f.svc.UpdateCard(ctx, as(f.owner), a.ID, CardInput{Status: StatusDone})
	require.NoError(t, err)
	moved, err := f.svc.UpdateCard(ctx, as(f.owner), b.ID, CardInput{Status: StatusOngoing})
	require.NoError(t, err, "status is free once the Ongoing card moves on")
	assert.Equal(t, StatusOngoing, moved.Status)
}

func Test_Ongoing_CountIncludingSelf(t *testing.T) {
	f := newFixture(t, WithOngoingPolicy(OngoingPolicy{ExcludeSelf: false}))

	a := f.givenCard(t, f.owner, CardInput{Title: "Card A", Status: StatusOngoing})

	_, err := f.svc.UpdateCard(context.Background(), as(f.owner), a.ID, CardInput{Status: StatusOngoing})
	assert.ErrorIs(t, err, ErrValidation, "without self-exclusion the card counts itself")

	_, err = f.svc.UpdateCard(context.Background(), as(f.owner), a.ID, CardInput{Title: "Card A renamed"})
	assert.NoError(t, err, "updates that do not set status skip the check")
}

func Test_Ongoing_ConcurrentUpdates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 8
	cards := make([]Card, n)
	for i := range cards {
		cards[i] = f.givenCard(t, f.owner, CardInput{Title: "Parallel card"})
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range cards {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.UpdateCard(ctx, as(f.owner), cards[i].ID, CardInput{Status: StatusOngoing})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrValidation)
	}
	assert.Equal(t, 1, succeeded)

	all, err := f.svc.ListCards(ctx)
	require.NoError(t, err)
	ongoing := 0
	for _, c := range all {
		if c.Status == StatusOngoing {
			ongoing++
		}
	}
	assert.Equal(t, 1, ongoing)
}

func Test_UpdateCard_OwnerOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	card := f.givenCard(t, f.owner, CardInput{Title: "Mine", Description: "original"})

	_, err := f.svc.UpdateCard(ctx, as(f.other), card.ID, CardInput{Title: "Theirs"})
	require.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, "Only the owner can edit the card", err.Error())

	_, err = f.svc.UpdateCard(ctx, as(f.admin), card.ID, CardInput{Title: "Admins too"})
	assert.ErrorIs(t, err, ErrForbidden, "admin role does not grant edit")

	unchanged, err := f.svc.GetCard(ctx, card.ID)
	require.NoError(t, err)
	assert.Equal(t, "Mine", unchanged.Title)

	updated, err := f.svc.UpdateCard(ctx, as(f.owner), card.ID, CardInput{Title: "Mine v2"})
	require.NoError(t, err)
	assert.Equal(t, "Mine v2", updated.Title)
	assert.Equal(t, card.Date, updated.Date)
	assert.Equal(t, f.owner.ID, updated.OwnerID)
}

func Test_UpdateCard_EmptyFieldsKeepStoredValues(t *testing.T) {
	f := newFixture(t)
	card := f.givenCard(t, f.owner, CardInput{Title: "Keep me", Description: "details", Status: StatusToDo, Priority: "Low"})

	updated, err := f.svc.UpdateCard(context.Background(), as(f.owner), card.ID, CardInput{Priority: "Urgent"})

	require.NoError(t, err)
	assert.Equal(t, "Keep me", updated.Title)
	assert.Equal(t, "details", updated.Description)
	assert.Equal(t, StatusToDo, updated.Status)
	assert.Equal(t, "Urgent", updated.Priority)
}

func Test_UpdateCard_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	card := f.givenCard(t, f.owner, CardInput{Title: "Target"})

	_, err := f.svc.UpdateCard(ctx, as(f.owner), card.ID+100, CardInput{Title: "Nope"})
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "Card with id 101 not found", err.Error())

	_, err = f.svc.UpdateCard(ctx, as(f.owner), card.ID, CardInput{Title: "x"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.UpdateCard(ctx, Identity{}, card.ID, CardInput{Title: "Anon"})
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func Test_DeleteCard_AdminOnlyAndCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	card := f.givenCard(t, f.owner, CardInput{Title: "Doomed"})
	keep := f.givenCard(t, f.owner, CardInput{Title: "Survivor"})
	for _, msg := range []string{"one", "two", "three"} {
		_, err := f.svc.CreateComment(ctx, as(f.other), card.ID, msg)
		require.NoError(t, err)
	}
	_, err := f.svc.CreateComment(ctx, as(f.other), keep.ID, "stays")
	require.NoError(t, err)

	_, err = f.svc.DeleteCard(ctx, as(f.owner), card.ID)
	require.ErrorIs(t, err, ErrForbidden, "ownership does not grant delete")
	assert.Equal(t, "Not authorised to delete a card", err.Error())

	_, err = f.svc.DeleteCard(ctx, as(f.admin), 4242)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.DeleteCard(ctx, as(f.owner), 4242)
	assert.ErrorIs(t, err, ErrForbidden, "non-admins are gated before the lookup")

	deleted, err := f.svc.DeleteCard(ctx, as(f.admin), card.ID)
	require.NoError(t, err)
	assert.Equal(t, "Doomed", deleted.Title)

	_, err = f.svc.GetCard(ctx, card.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	err = f.store.InTx(ctx, func(tx Session) error {
		left, err := tx.CommentsByCards(ctx, card.ID)
		assert.Empty(t, left, "no comment may outlive its card")
		return err
	})
	require.NoError(t, err)

	remaining, err := f.svc.ListComments(ctx, keep.ID)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func Test_ListCards_NewestFirstWithComments(t *testing.T) {
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f := newFixture(t, WithClock(func() time.Time { return day }))
	ctx := context.Background()

	older := f.givenCard(t, f.owner, CardInput{Title: "Older"})
	day = day.AddDate(0, 0, 2)
	newer := f.givenCard(t, f.other, CardInput{Title: "Newer"})
	_, err := f.svc.CreateComment(ctx, as(f.owner), older.ID, "first")
	require.NoError(t, err)

	cards, err := f.svc.ListCards(ctx)

	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Equal(t, newer.ID, cards[0].ID)
	assert.Equal(t, older.ID, cards[1].ID)
	assert.Empty(t, cards[0].Comments)
	require.Len(t, cards[1].Comments, 1)
	assert.Equal(t, "first", cards[1].Comments[0].Message)
	assert.Equal(t, "owner", cards[1].Comments[0].AuthorName)
}

func Test_Comments_Lifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	card := f.givenCard(t, f.owner, CardInput{Title: "Discussed"})

	c, err := f.svc.CreateComment(ctx, as(f.other), card.ID, "hello")
	require.NoError(t, err)
	assert.Equal(t, card.ID, c.CardID)
	assert.Equal(t, f.other.ID, c.AuthorID)

	edited, err := f.svc.EditComment(ctx, as(f.admin), card.ID, c.ID, "hello again")
	require.NoError(t, err, "any authenticated caller may edit a comment")
	assert.Equal(t, "hello again", edited.Message)
	assert.Equal(t, f.other.ID, edited.AuthorID, "author is not changed by edits")

	same, err := f.svc.EditComment(ctx, as(f.owner), card.ID, c.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "hello again", same.Message, "empty message keeps the old one")

	require.NoError(t, f.svc.DeleteComment(ctx, as(f.owner), card.ID, c.ID))
	left, err := f.svc.ListComments(ctx, card.ID)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func Test_Comments_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cardA := f.givenCard(t, f.owner, CardInput{Title: "Card A"})
	cardB := f.givenCard(t, f.owner, CardInput{Title: "Card B"})
	onA, err := f.svc.CreateComment(ctx, as(f.owner), cardA.ID, "on a")
	require.NoError(t, err)

	_, err = f.svc.CreateComment(ctx, as(f.owner), 999, "orphan")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "Card with id 999 doesn't exist", err.Error())

	_, err = f.svc.CreateComment(ctx, as(f.owner), cardA.ID, "")
	require.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "message", fieldOf(t, err))

	_, err = f.svc.CreateComment(ctx, Identity{}, cardA.ID, "anon")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = f.svc.EditComment(ctx, as(f.owner), cardB.ID, onA.ID, "wrong card")
	require.ErrorIs(t, err, ErrNotFound, "comment on another card is not found")
	assert.Contains(t, err.Error(), "not found in card with id")

	err = f.svc.DeleteComment(ctx, as(f.owner), cardB.ID, onA.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	err = f.svc.DeleteComment(ctx, as(f.owner), cardA.ID, onA.ID+50)
	assert.ErrorIs(t, err, ErrNotFound)

	still, err := f.svc.ListComments(ctx, cardA.ID)
	require.NoError(t, err)
	require.Len(t, still, 1)
	assert.Equal(t, "on a", still[0].Message)

	_, err = f.svc.ListComments(ctx, 12345)
	assert.ErrorIs(t, err, ErrNotFound)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func Test_Service_PublishesCommittedMutationsOnly(t *testing.T) {
	pub := &recordingPublisher{}
	f := newFixture(t, WithPublisher(pub))
	ctx := context.Background()

	card := f.givenCard(t, f.owner, CardInput{Title: "Evented"})
	_, err := f.svc.UpdateCard(ctx, as(f.other), card.ID, CardInput{Title: "Hijack"})
	require.Error(t, err)
	_, err = f.svc.CreateComment(ctx, as(f.other), card.ID, "hi")
	require.NoError(t, err)
	_, err = f.svc.DeleteCard(ctx, as(f.admin), card.ID)
	require.NoError(t, err)

	var types []string
	for _, ev := range pub.events {
		types = append(types, ev.Type)
		assert.Equal(t, card.ID, ev.CardID)
	}
	assert.Equal(t, []string{"card.created", "comment.created", "card.deleted"}, types)
}

func Test_EditComment_EmptyMessagePublishesNothing(t *testing.T) {
	pub := &recordingPublisher{}
	f := newFixture(t, WithPublisher(pub))
	ctx := context.Background()
	card := f.givenCard(t, f.owner, CardInput{Title: "Quiet"})
	c, err := f.svc.CreateComment(ctx, as(f.owner), card.ID, "keep me")
	require.NoError(t, err)

	same, err := f.svc.EditComment(ctx, as(f.other), card.ID, c.ID, "")

	require.NoError(t, err)
	assert.Equal(t, "keep me", same.Message)
	require.Len(t, pub.events, 2)
	assert.Equal(t, "comment.created", pub.events[1].Type)
}

func Test_Service_CountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := newFixture(t, WithMetrics(reg))
	ctx := context.Background()

	card := f.givenCard(t, f.owner, CardInput{Title: "Counted"})
	_, _ = f.svc.UpdateCard(ctx, as(f.other), card.ID, CardInput{Title: "Nope"})
	_, _ = f.svc.DeleteCard(ctx, as(f.owner), card.ID)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.svc.metrics.mutations.WithLabelValues("create_card", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.svc.metrics.mutations.WithLabelValues("update_card", "forbidden")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.svc.metrics.mutations.WithLabelValues("delete_card", "forbidden")))
}
