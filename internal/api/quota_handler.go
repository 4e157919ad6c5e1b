package api

import (
	"net/http"

	"github.com/sungwon/mailcast/internal/logger"
	"github.com/sungwon/mailcast/internal/provider"
)

// GetQuotaHandler handles GET /api/v1/quota. A nil reporter means the
// configured provider does not expose quota.
func GetQuotaHandler(reporter provider.QuotaReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		if reporter == nil {
			respondError(w, http.StatusNotImplemented, "provider does not report quota")
			return
		}

		quota, err := reporter.Quota(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("failed to retrieve provider quota")
			respondError(w, http.StatusBadGateway, "failed to retrieve provider quota")
			return
		}

		respondJSON(w, http.StatusOK, quota)
	}
}
