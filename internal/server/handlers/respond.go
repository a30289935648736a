package handlers

import (
	"errors"
	"net/http"
	"time"

	gferrors "github.com/fulmenhq/gofulmen/errors"

	apperrors "github.com/hookline/hookline/internal/errors"
	"github.com/hookline/hookline/internal/metrics"
)

// relayFailure answers a failed relay call. Errors that already carry an
// envelope keep it; dispatcher and webhook errors are mapped by kind. The
// envelope code doubles as the relay outcome label.
func relayFailure(w http.ResponseWriter, r *http.Request, start time.Time, err error) {
	var envelope *gferrors.ErrorEnvelope
	if !errors.As(err, &envelope) || envelope == nil {
		envelope = apperrors.MapDispatchError(r.Context(), err)
	}
	metrics.RecordRelay(envelope.Code, time.Since(start))
	apperrors.RespondWithEnvelope(w, r, envelope)
}
