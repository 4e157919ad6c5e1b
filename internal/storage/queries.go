package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// DBTX is the minimal pgx execution surface shared by *pgxpool.Pool and
// pgx.Tx, so the same queries run pooled or inside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries implements Querier with hand-written SQL against a DBTX.
type Queries struct {
	db DBTX
}

// New creates a Queries bound to the given pool or transaction.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a Queries bound to the given transaction.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

const emailRequestColumns = `id, topic_id, provider_message_id, recipient, subject, content,
	scheduled_at, status, error, dispatched_at, created_at, updated_at, deleted_at`

func scanEmailRequest(row pgx.Row) (EmailRequest, error) {
	var r EmailRequest
	err := row.Scan(
		&r.ID, &r.TopicID, &r.ProviderMessageID, &r.Recipient, &r.Subject, &r.Content,
		&r.ScheduledAt, &r.Status, &r.Error, &r.DispatchedAt, &r.CreatedAt, &r.UpdatedAt, &r.DeletedAt,
	)
	return r, err
}

// CreateEmailRequestParams holds the columns for a new email request.
// DispatchedAt is set for immediate-path requests, which are claimed at
// insert time because the caller enqueues them in the same transaction.
type CreateEmailRequestParams struct {
	TopicID      string
	Recipient    string
	Subject      string
	Content      string
	ScheduledAt  time.Time
	DispatchedAt pgtype.Timestamptz
}

const createEmailRequest = `
INSERT INTO email_requests (topic_id, recipient, subject, content, scheduled_at, status, dispatched_at)
VALUES ($1, $2, $3, $4, $5, 'pending', $6)
RETURNING ` + emailRequestColumns

func (q *Queries) CreateEmailRequest(ctx context.Context, arg CreateEmailRequestParams) (EmailRequest, error) {
	row := q.db.QueryRow(ctx, createEmailRequest,
		arg.TopicID, arg.Recipient, arg.Subject, arg.Content, arg.ScheduledAt, arg.DispatchedAt)
	return scanEmailRequest(row)
}

const getEmailRequestByID = `
SELECT ` + emailRequestColumns + `
FROM email_requests
WHERE id = $1`

func (q *Queries) GetEmailRequestByID(ctx context.Context, id int64) (EmailRequest, error) {
	return scanEmailRequest(q.db.QueryRow(ctx, getEmailRequestByID, id))
}

// MarkEmailRequestSentParams records a successful provider call.
type MarkEmailRequestSentParams struct {
	ID                int64
	ProviderMessageID string
}

// The status predicate makes the transition conditional: a request
// cancelled after dequeue but before this write stays cancelled.
const markEmailRequestSent = `
UPDATE email_requests
SET status = 'sent', provider_message_id = $2, error = NULL, updated_at = now()
WHERE id = $1 AND status = 'pending'`

// MarkEmailRequestSent reports whether the row actually transitioned,
// so callers can tell a recorded send from one the predicate refused.
func (q *Queries) MarkEmailRequestSent(ctx context.Context, arg MarkEmailRequestSentParams) (bool, error) {
	tag, err := q.db.Exec(ctx, markEmailRequestSent, arg.ID, arg.ProviderMessageID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkEmailRequestFailedParams records a failed provider call.
type MarkEmailRequestFailedParams struct {
	ID    int64
	Error string
}

const markEmailRequestFailed = `
UPDATE email_requests
SET status = 'failed', error = $2, updated_at = now()
WHERE id = $1 AND status = 'pending'`

func (q *Queries) MarkEmailRequestFailed(ctx context.Context, arg MarkEmailRequestFailedParams) error {
	_, err := q.db.Exec(ctx, markEmailRequestFailed, arg.ID, arg.Error)
	return err
}

// ClaimDueEmailRequestsParams selects the scheduler's promotion batch.
// RetryBefore re-opens claims older than the requeue window so work
// lost to a crash or a dropped channel item becomes due again.
type ClaimDueEmailRequestsParams struct {
	Now         time.Time
	RetryBefore time.Time
	Limit       int32
}

const claimDueEmailRequests = `
UPDATE email_requests
SET dispatched_at = $1, updated_at = now()
WHERE id IN (
	SELECT id FROM email_requests
	WHERE status = 'pending'
	  AND deleted_at IS NULL
	  AND scheduled_at <= $1
	  AND (dispatched_at IS NULL OR dispatched_at < $2)
	ORDER BY scheduled_at
	LIMIT $3
	FOR UPDATE SKIP LOCKED
)
RETURNING ` + emailRequestColumns

func (q *Queries) ClaimDueEmailRequests(ctx context.Context, arg ClaimDueEmailRequestsParams) ([]EmailRequest, error) {
	rows, err := q.db.Query(ctx, claimDueEmailRequests, arg.Now, arg.RetryBefore, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []EmailRequest
	for rows.Next() {
		r, err := scanEmailRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

const getRequestIDByProviderMessageID = `
SELECT id FROM email_requests
WHERE provider_message_id = $1`

func (q *Queries) GetRequestIDByProviderMessageID(ctx context.Context, providerMessageID string) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, getRequestIDByProviderMessageID, providerMessageID).Scan(&id)
	return id, err
}

// AppendEmailResultParams holds one entry for the append-only result
// log. ProviderEventID, when valid, dedups replayed webhook deliveries
// through the partial unique index; the open-once index dedups open
// pings the same way.
type AppendEmailResultParams struct {
	RequestID       int64
	Status          string
	ProviderEventID pgtype.Text
	Raw             pgtype.Text
}

const appendEmailResult = `
INSERT INTO email_results (request_id, status, provider_event_id, raw)
VALUES ($1, $2, $3, $4)
ON CONFLICT DO NOTHING`

// AppendEmailResult inserts a result row. It reports false when a
// unique index swallowed the insert, i.e. the event was a duplicate.
func (q *Queries) AppendEmailResult(ctx context.Context, arg AppendEmailResultParams) (bool, error) {
	tag, err := q.db.Exec(ctx, appendEmailResult,
		arg.RequestID, arg.Status, arg.ProviderEventID, arg.Raw)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

const countRequestsByTopic = `
SELECT status, COUNT(*) FROM email_requests
WHERE topic_id = $1 AND deleted_at IS NULL
GROUP BY status`

func (q *Queries) CountRequestsByTopic(ctx context.Context, topicID string) ([]StatusCount, error) {
	return q.queryStatusCounts(ctx, countRequestsByTopic, topicID)
}

const countResultsByTopic = `
SELECT status, COUNT(DISTINCT request_id) FROM email_results
WHERE request_id IN (
	SELECT id FROM email_requests WHERE topic_id = $1
)
GROUP BY status`

func (q *Queries) CountResultsByTopic(ctx context.Context, topicID string) ([]StatusCount, error) {
	return q.queryStatusCounts(ctx, countResultsByTopic, topicID)
}

func (q *Queries) queryStatusCounts(ctx context.Context, sql, topicID string) ([]StatusCount, error) {
	rows, err := q.db.Query(ctx, sql, topicID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []StatusCount
	for rows.Next() {
		var c StatusCount
		if err := rows.Scan(&c.Status, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

const countOpenedByTopic = `
SELECT COUNT(DISTINCT r.request_id)
FROM email_results r
JOIN email_requests q ON q.id = r.request_id
WHERE q.topic_id = $1 AND r.status = 'open'`

func (q *Queries) CountOpenedByTopic(ctx context.Context, topicID string) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countOpenedByTopic, topicID).Scan(&count)
	return count, err
}

// CancelTopic transitions every still-pending request in the topic to
// cancelled. Dispatched requests are untouched; cancellation never
// reverses a completed attempt.
const cancelTopic = `
UPDATE email_requests
SET status = 'cancelled', updated_at = now()
WHERE topic_id = $1 AND status = 'pending' AND deleted_at IS NULL`

func (q *Queries) CancelTopic(ctx context.Context, topicID string) (int64, error) {
	tag, err := q.db.Exec(ctx, cancelTopic, topicID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const countSentSince = `
SELECT COUNT(*) FROM email_requests
WHERE status = 'sent' AND updated_at >= $1`

func (q *Queries) CountSentSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countSentSince, since).Scan(&count)
	return count, err
}
