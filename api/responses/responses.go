package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	pkgerrors "github.com/angelmondragon/foodfund-backend/pkg/errors"
	"github.com/angelmondragon/foodfund-backend/pkg/logger"
)

const requestIDHeader = "X-Request-Id"

// publicCodes keep the caller-facing message of the typed error; every other
// code answers with the generic message from the error metadata.
var publicCodes = map[pkgerrors.Code]struct{}{
	pkgerrors.CodeValidation:             {},
	pkgerrors.CodeForbidden:              {},
	pkgerrors.CodeUnauthorized:           {},
	pkgerrors.CodeNotFound:               {},
	pkgerrors.CodeConflict:               {},
	pkgerrors.CodeStateConflict:          {},
	pkgerrors.CodeIdempotency:            {},
	pkgerrors.CodeRateLimit:              {},
	pkgerrors.CodeInvalidTransition:      {},
	pkgerrors.CodeInsufficientAllocation: {},
	pkgerrors.CodeDisbursementConflict:   {},
	pkgerrors.CodeAuditRejected:          {},
	pkgerrors.CodePhaseFailed:            {},
	pkgerrors.CodeUnrecognizedStatus:     {},
	pkgerrors.CodeStaleWrite:             {},
}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, SuccessEnvelope{Data: data})
}

func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}

	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}

	meta := pkgerrors.MetadataFor(typed.Code())

	msg := meta.PublicMessage
	if _, ok := publicCodes[typed.Code()]; ok && typed.Message() != "" {
		msg = typed.Message()
	}

	payload := ErrorEnvelope{
		Error: APIError{
			Code:      string(typed.Code()),
			Message:   msg,
			RequestID: w.Header().Get(requestIDHeader),
		},
	}

	if meta.DetailsAllowed {
		if details := typed.Details(); details != nil {
			payload.Error.Details = details
		}
	}

	if logg != nil {
		fields := pkgerrors.Dump(err).Fields()
		fields["error_code"] = typed.Code()
		if d := typed.Details(); d != nil {
			fields["error_details"] = d
		}

		ctx = logg.WithFields(ctx, fields)
		if meta.HTTPStatus >= http.StatusInternalServerError {
			logg.Error(ctx, "request.error", err)
		} else {
			logg.Warn(ctx, "request.rejected")
		}
	}

	writeJSON(w, meta.HTTPStatus, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status line is already written; an encode failure means the client went away.
	_ = json.NewEncoder(w).Encode(payload)
}
