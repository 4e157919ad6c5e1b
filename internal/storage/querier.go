package storage

import (
	"context"
	"time"
)

// Querier is the set of database operations the dispatch core needs.
// *Queries implements it against pgx; tests substitute function-field
// mocks.
type Querier interface {
	CreateEmailRequest(ctx context.Context, arg CreateEmailRequestParams) (EmailRequest, error)
	GetEmailRequestByID(ctx context.Context, id int64) (EmailRequest, error)
	MarkEmailRequestSent(ctx context.Context, arg MarkEmailRequestSentParams) (bool, error)
	MarkEmailRequestFailed(ctx context.Context, arg MarkEmailRequestFailedParams) error
	ClaimDueEmailRequests(ctx context.Context, arg ClaimDueEmailRequestsParams) ([]EmailRequest, error)
	GetRequestIDByProviderMessageID(ctx context.Context, providerMessageID string) (int64, error)
	AppendEmailResult(ctx context.Context, arg AppendEmailResultParams) (bool, error)
	CountRequestsByTopic(ctx context.Context, topicID string) ([]StatusCount, error)
	CountResultsByTopic(ctx context.Context, topicID string) ([]StatusCount, error)
	CountOpenedByTopic(ctx context.Context, topicID string) (int64, error)
	CancelTopic(ctx context.Context, topicID string) (int64, error)
	CountSentSince(ctx context.Context, since time.Time) (int64, error)
}
