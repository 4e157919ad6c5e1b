package api

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sungwon/mailcast/internal/storage"
)

// mockQuerier implements storage.Querier for testing.
type mockQuerier struct {
	countSentSinceFn func(ctx context.Context, since time.Time) (int64, error)
}

func (m *mockQuerier) CreateEmailRequest(_ context.Context, _ storage.CreateEmailRequestParams) (storage.EmailRequest, error) {
	return storage.EmailRequest{}, nil
}
func (m *mockQuerier) GetEmailRequestByID(_ context.Context, _ int64) (storage.EmailRequest, error) {
	return storage.EmailRequest{}, pgx.ErrNoRows
}
func (m *mockQuerier) MarkEmailRequestSent(_ context.Context, _ storage.MarkEmailRequestSentParams) (bool, error) {
	return true, nil
}
func (m *mockQuerier) MarkEmailRequestFailed(_ context.Context, _ storage.MarkEmailRequestFailedParams) error {
	return nil
}
func (m *mockQuerier) ClaimDueEmailRequests(_ context.Context, _ storage.ClaimDueEmailRequestsParams) ([]storage.EmailRequest, error) {
	return nil, nil
}
func (m *mockQuerier) GetRequestIDByProviderMessageID(_ context.Context, _ string) (int64, error) {
	return 0, pgx.ErrNoRows
}
func (m *mockQuerier) AppendEmailResult(_ context.Context, _ storage.AppendEmailResultParams) (bool, error) {
	return true, nil
}
func (m *mockQuerier) CountRequestsByTopic(_ context.Context, _ string) ([]storage.StatusCount, error) {
	return nil, nil
}
func (m *mockQuerier) CountResultsByTopic(_ context.Context, _ string) ([]storage.StatusCount, error) {
	return nil, nil
}
func (m *mockQuerier) CountOpenedByTopic(_ context.Context, _ string) (int64, error) { return 0, nil }
func (m *mockQuerier) CancelTopic(_ context.Context, _ string) (int64, error)        { return 0, nil }

func (m *mockQuerier) CountSentSince(ctx context.Context, since time.Time) (int64, error) {
	if m.countSentSinceFn != nil {
		return m.countSentSinceFn(ctx, since)
	}
	return 0, nil
}
