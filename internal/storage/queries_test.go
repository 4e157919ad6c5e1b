//go:build integration

package storage_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/sungwon/mailcast/internal/storage"
)

var topicSeq int

// newTopicID returns a topic id unused by other tests, since the
// container is shared.
func newTopicID() string {
	topicSeq++
	return fmt.Sprintf("topic-%d-%d", time.Now().UnixNano(), topicSeq)
}

func createRequest(t *testing.T, q *storage.Queries, topicID string, scheduledAt time.Time) storage.EmailRequest {
	t.Helper()
	req, err := q.CreateEmailRequest(context.Background(), storage.CreateEmailRequestParams{
		TopicID:     topicID,
		Recipient:   "user@example.com",
		Subject:     "hello",
		Content:     "<p>hi</p>",
		ScheduledAt: scheduledAt,
	})
	if err != nil {
		t.Fatalf("CreateEmailRequest: %v", err)
	}
	return req
}

func TestCreateAndGetEmailRequest(t *testing.T) {
	_, q := setupTestDB(t)
	ctx := context.Background()

	created := createRequest(t, q, newTopicID(), time.Now().UTC())

	got, err := q.GetEmailRequestByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetEmailRequestByID: %v", err)
	}
	if got.Status != storage.RequestStatusPending {
		t.Errorf("Status = %q, want pending", got.Status)
	}
	if got.Recipient != "user@example.com" || got.Subject != "hello" {
		t.Errorf("row = %+v", got)
	}
	if got.DispatchedAt.Valid {
		t.Error("scheduled-path insert should not be claimed")
	}
}

func TestGetEmailRequestByIDNotFound(t *testing.T) {
	_, q := setupTestDB(t)

	_, err := q.GetEmailRequestByID(context.Background(), 1<<40)
	if !errors.Is(err, pgx.ErrNoRows) {
		t.Errorf("err = %v, want pgx.ErrNoRows", err)
	}
}

func TestMarkEmailRequestSentConditional(t *testing.T) {
	_, q := setupTestDB(t)
	ctx := context.Background()

	req := createRequest(t, q, newTopicID(), time.Now().UTC())

	updated, err := q.MarkEmailRequestSent(ctx, storage.MarkEmailRequestSentParams{
		ID:                req.ID,
		ProviderMessageID: "ses-abc",
	})
	if err != nil {
		t.Fatalf("MarkEmailRequestSent: %v", err)
	}
	if !updated {
		t.Error("pending row did not transition to sent")
	}

	got, err := q.GetEmailRequestByID(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetEmailRequestByID: %v", err)
	}
	if got.Status != storage.RequestStatusSent {
		t.Errorf("Status = %q, want sent", got.Status)
	}
	if !got.ProviderMessageID.Valid || got.ProviderMessageID.String != "ses-abc" {
		t.Errorf("ProviderMessageID = %+v", got.ProviderMessageID)
	}

	// A failed transition must not overwrite the terminal state.
	if err := q.MarkEmailRequestFailed(ctx, storage.MarkEmailRequestFailedParams{
		ID:    req.ID,
		Error: "late failure",
	}); err != nil {
		t.Fatalf("MarkEmailRequestFailed: %v", err)
	}
	got, _ = q.GetEmailRequestByID(ctx, req.ID)
	if got.Status != storage.RequestStatusSent {
		t.Errorf("Status = %q after late failure write, want sent", got.Status)
	}

	// Marking an already-sent row again reports no transition.
	updated, err = q.MarkEmailRequestSent(ctx, storage.MarkEmailRequestSentParams{
		ID:                req.ID,
		ProviderMessageID: "ses-late",
	})
	if err != nil {
		t.Fatalf("MarkEmailRequestSent: %v", err)
	}
	if updated {
		t.Error("non-pending row reported a transition")
	}
}

func TestClaimDueEmailRequests(t *testing.T) {
	_, q := setupTestDB(t)
	ctx := context.Background()
	topicID := newTopicID()
	now := time.Now().UTC()

	due := createRequest(t, q, topicID, now.Add(-time.Minute))
	createRequest(t, q, topicID, now.Add(time.Hour)) // future, must stay

	claimed, err := q.ClaimDueEmailRequests(ctx, storage.ClaimDueEmailRequestsParams{
		Now:         now,
		RetryBefore: now.Add(-10 * time.Minute),
		Limit:       100,
	})
	if err != nil {
		t.Fatalf("ClaimDueEmailRequests: %v", err)
	}

	found := false
	for _, r := range claimed {
		if r.ID == due.ID {
			found = true
		}
		if r.ScheduledAt.After(now) {
			t.Errorf("claimed future request %d scheduled at %v", r.ID, r.ScheduledAt)
		}
	}
	if !found {
		t.Errorf("due request %d not claimed", due.ID)
	}

	// A second claim inside the requeue window must not return it again.
	reclaimed, err := q.ClaimDueEmailRequests(ctx, storage.ClaimDueEmailRequestsParams{
		Now:         now.Add(time.Second),
		RetryBefore: now.Add(-10 * time.Minute),
		Limit:       100,
	})
	if err != nil {
		t.Fatalf("ClaimDueEmailRequests: %v", err)
	}
	for _, r := range reclaimed {
		if r.ID == due.ID {
			t.Errorf("request %d claimed twice inside the requeue window", due.ID)
		}
	}

	// After the window expires the claim re-opens.
	later := now.Add(20 * time.Minute)
	expired, err := q.ClaimDueEmailRequests(ctx, storage.ClaimDueEmailRequestsParams{
		Now:         later,
		RetryBefore: later.Add(-10 * time.Minute),
		Limit:       100,
	})
	if err != nil {
		t.Fatalf("ClaimDueEmailRequests: %v", err)
	}
	found = false
	for _, r := range expired {
		if r.ID == due.ID {
			found = true
		}
	}
	if !found {
		t.Errorf("request %d not re-claimed after the requeue window", due.ID)
	}
}

func TestAppendEmailResultEventDedup(t *testing.T) {
	_, q := setupTestDB(t)
	ctx := context.Background()

	req := createRequest(t, q, newTopicID(), time.Now().UTC())
	params := storage.AppendEmailResultParams{
		RequestID:       req.ID,
		Status:          storage.ResultStatusBounce,
		ProviderEventID: pgtype.Text{String: "feedback-" + newTopicID(), Valid: true},
		Raw:             pgtype.Text{String: `{"notificationType":"Bounce"}`, Valid: true},
	}

	inserted, err := q.AppendEmailResult(ctx, params)
	if err != nil {
		t.Fatalf("AppendEmailResult: %v", err)
	}
	if !inserted {
		t.Fatal("first append reported duplicate")
	}

	inserted, err = q.AppendEmailResult(ctx, params)
	if err != nil {
		t.Fatalf("AppendEmailResult replay: %v", err)
	}
	if inserted {
		t.Error("replayed event id inserted twice")
	}
}

func TestAppendEmailResultOpenOnce(t *testing.T) {
	_, q := setupTestDB(t)
	ctx := context.Background()

	req := createRequest(t, q, newTopicID(), time.Now().UTC())
	open := storage.AppendEmailResultParams{RequestID: req.ID, Status: storage.ResultStatusOpen}

	inserted, err := q.AppendEmailResult(ctx, open)
	if err != nil {
		t.Fatalf("AppendEmailResult: %v", err)
	}
	if !inserted {
		t.Fatal("first open reported duplicate")
	}

	inserted, err = q.AppendEmailResult(ctx, open)
	if err != nil {
		t.Fatalf("AppendEmailResult second open: %v", err)
	}
	if inserted {
		t.Error("second open inserted, want first-open-wins")
	}

	// Other result kinds for the same request still append.
	inserted, err = q.AppendEmailResult(ctx, storage.AppendEmailResultParams{
		RequestID: req.ID,
		Status:    storage.ResultStatusDelivery,
	})
	if err != nil || !inserted {
		t.Errorf("delivery append after open = (%v, %v), want inserted", inserted, err)
	}
}

func TestGetRequestIDByProviderMessageID(t *testing.T) {
	_, q := setupTestDB(t)
	ctx := context.Background()

	req := createRequest(t, q, newTopicID(), time.Now().UTC())
	msgID := "ses-" + newTopicID()
	if _, err := q.MarkEmailRequestSent(ctx, storage.MarkEmailRequestSentParams{
		ID:                req.ID,
		ProviderMessageID: msgID,
	}); err != nil {
		t.Fatalf("MarkEmailRequestSent: %v", err)
	}

	id, err := q.GetRequestIDByProviderMessageID(ctx, msgID)
	if err != nil {
		t.Fatalf("GetRequestIDByProviderMessageID: %v", err)
	}
	if id != req.ID {
		t.Errorf("id = %d, want %d", id, req.ID)
	}

	if _, err := q.GetRequestIDByProviderMessageID(ctx, "never-seen"); !errors.Is(err, pgx.ErrNoRows) {
		t.Errorf("unknown message id err = %v, want pgx.ErrNoRows", err)
	}
}

func TestTopicAggregatesAndCancel(t *testing.T) {
	_, q := setupTestDB(t)
	ctx := context.Background()
	topicID := newTopicID()

	a := createRequest(t, q, topicID, time.Now().UTC())
	b := createRequest(t, q, topicID, time.Now().UTC())
	createRequest(t, q, topicID, time.Now().UTC().Add(time.Hour))

	if _, err := q.MarkEmailRequestSent(ctx, storage.MarkEmailRequestSentParams{ID: a.ID, ProviderMessageID: "m-" + topicID}); err != nil {
		t.Fatal(err)
	}
	if _, err := q.AppendEmailResult(ctx, storage.AppendEmailResultParams{RequestID: a.ID, Status: storage.ResultStatusOpen}); err != nil {
		t.Fatal(err)
	}

	requests, err := q.CountRequestsByTopic(ctx, topicID)
	if err != nil {
		t.Fatalf("CountRequestsByTopic: %v", err)
	}
	byStatus := map[string]int64{}
	for _, c := range requests {
		byStatus[c.Status] = c.Count
	}
	if byStatus["sent"] != 1 || byStatus["pending"] != 2 {
		t.Errorf("request counts = %v", byStatus)
	}

	opened, err := q.CountOpenedByTopic(ctx, topicID)
	if err != nil {
		t.Fatalf("CountOpenedByTopic: %v", err)
	}
	if opened != 1 {
		t.Errorf("opened = %d, want 1", opened)
	}

	cancelled, err := q.CancelTopic(ctx, topicID)
	if err != nil {
		t.Fatalf("CancelTopic: %v", err)
	}
	if cancelled != 2 {
		t.Errorf("cancelled = %d, want 2 pending requests", cancelled)
	}

	// The sent request keeps its terminal state.
	got, _ := q.GetEmailRequestByID(ctx, a.ID)
	if got.Status != storage.RequestStatusSent {
		t.Errorf("sent request status = %q after cancel", got.Status)
	}
	got, _ = q.GetEmailRequestByID(ctx, b.ID)
	if got.Status != storage.RequestStatusCancelled {
		t.Errorf("pending request status = %q after cancel, want cancelled", got.Status)
	}
}

func TestCountSentSince(t *testing.T) {
	_, q := setupTestDB(t)
	ctx := context.Background()

	req := createRequest(t, q, newTopicID(), time.Now().UTC())
	if _, err := q.MarkEmailRequestSent(ctx, storage.MarkEmailRequestSentParams{ID: req.ID, ProviderMessageID: "m-count"}); err != nil {
		t.Fatal(err)
	}

	before, err := q.CountSentSince(ctx, time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("CountSentSince: %v", err)
	}
	if before < 1 {
		t.Errorf("count = %d, want at least 1", before)
	}

	future, err := q.CountSentSince(ctx, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("CountSentSince: %v", err)
	}
	if future != 0 {
		t.Errorf("count with future cutoff = %d, want 0", future)
	}
}

func TestInTxRollsBackOnError(t *testing.T) {
	db, q := setupTestDB(t)
	ctx := context.Background()
	topicID := newTopicID()

	wantErr := errors.New("abort")
	err := db.InTx(ctx, func(txq storage.Querier) error {
		if _, err := txq.CreateEmailRequest(ctx, storage.CreateEmailRequestParams{
			TopicID:     topicID,
			Recipient:   "user@example.com",
			Subject:     "s",
			Content:     "c",
			ScheduledAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("InTx = %v, want the callback error", err)
	}

	counts, err := q.CountRequestsByTopic(ctx, topicID)
	if err != nil {
		t.Fatalf("CountRequestsByTopic: %v", err)
	}
	if len(counts) != 0 {
		t.Errorf("rolled-back insert visible: %v", counts)
	}
}
