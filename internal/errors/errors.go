package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atlasdao/painel-sub005/internal/core/engine"
	"github.com/atlasdao/painel-sub005/internal/metrics"
	"github.com/atlasdao/painel-sub005/internal/observability"
	"github.com/atlasdao/painel-sub005/internal/server/middleware"
)

const (
	CodeInvalidInput       = "INVALID_INPUT"
	CodeNotFound           = "NOT_FOUND"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeRateLimited        = "RATE_LIMITED"
	CodeBudgetExhausted    = "BUDGET_EXHAUSTED"
	CodeInternal           = "INTERNAL_ERROR"
	CodeDatabase           = "DATABASE_ERROR"
	CodeExternalService    = "EXTERNAL_SERVICE_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeTimeout            = "TIMEOUT"
	CodeConfigInvalid      = "CONFIG_INVALID"
)

var statusByCode = map[string]int{
	CodeInvalidInput:       http.StatusBadRequest,
	CodeNotFound:           http.StatusNotFound,
	CodeUnauthorized:       http.StatusUnauthorized,
	CodeMethodNotAllowed:   http.StatusMethodNotAllowed,
	CodeRateLimited:        http.StatusTooManyRequests,
	CodeBudgetExhausted:    http.StatusTooManyRequests,
	CodeInternal:           http.StatusInternalServerError,
	CodeDatabase:           http.StatusInternalServerError,
	CodeExternalService:    http.StatusBadGateway,
	CodeServiceUnavailable: http.StatusServiceUnavailable,
	CodeTimeout:            http.StatusGatewayTimeout,
	CodeConfigInvalid:      http.StatusInternalServerError,
}

// New returns an envelope for code with the severity used when it is logged.
// Client errors carry no severity and are logged at info.
func New(code, message string) *errors.ErrorEnvelope {
	env := errors.NewErrorEnvelope(code, message)
	switch code {
	case CodeConfigInvalid:
		env, _ = env.WithSeverity(errors.SeverityCritical)
	case CodeInternal, CodeDatabase, CodeExternalService:
		env, _ = env.WithSeverity(errors.SeverityHigh)
	case CodeUnauthorized, CodeBudgetExhausted, CodeServiceUnavailable, CodeTimeout:
		env, _ = env.WithSeverity(errors.SeverityMedium)
	}
	return env
}

func NewInvalidInputError(message string) *errors.ErrorEnvelope {
	return New(CodeInvalidInput, message)
}

func NewNotFoundError(message string) *errors.ErrorEnvelope {
	return New(CodeNotFound, message)
}

func NewMethodNotAllowedError(message string) *errors.ErrorEnvelope {
	return New(CodeMethodNotAllowed, message)
}

func NewInternalError(message string) *errors.ErrorEnvelope {
	return New(CodeInternal, message)
}

func NewServiceUnavailableError(message string) *errors.ErrorEnvelope {
	return New(CodeServiceUnavailable, message)
}

func NewConfigInvalidError(message string) *errors.ErrorEnvelope {
	return New(CodeConfigInvalid, message)
}

// Wrap builds an envelope for code around err. The cause is kept in the
// envelope context for logs and never reaches the response body.
func Wrap(ctx context.Context, code string, err error, message string) *errors.ErrorEnvelope {
	id := correlationID(ctx)
	env := New(code, message).WithCorrelationID(id).WithTraceID(id)
	if err == nil {
		return env
	}
	if updated, ctxErr := env.WithContext(map[string]interface{}{"wrapped_error": err.Error()}); ctxErr == nil {
		env = updated
	}
	return env
}

func WrapInternal(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return Wrap(ctx, CodeInternal, err, message)
}

func WrapDatabaseError(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return Wrap(ctx, CodeDatabase, err, message)
}

func WrapConfigInvalid(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return Wrap(ctx, CodeConfigInvalid, err, message)
}

// WrapProviderCall classifies the error of a throttled provider call: a spent
// daily budget, an expired deadline, or a failure of the provider itself.
func WrapProviderCall(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	switch {
	case stderrors.Is(err, engine.ErrDailyLimitExceeded):
		return Wrap(ctx, CodeBudgetExhausted, err, message)
	case stderrors.Is(err, context.DeadlineExceeded):
		return Wrap(ctx, CodeTimeout, err, message)
	default:
		return Wrap(ctx, CodeExternalService, err, message)
	}
}

func correlationID(ctx context.Context) string {
	if ctx != nil {
		if requestID := middleware.GetRequestID(ctx); requestID != "" {
			return requestID
		}
	}
	return uuid.NewString()
}

// EnsureEnvelope normalizes any error into a gofulmen ErrorEnvelope.
func EnsureEnvelope(err error) *errors.ErrorEnvelope {
	var envelope *errors.ErrorEnvelope
	switch {
	case err == nil:
		return New(CodeInternal, "unexpected nil error")
	case stderrors.As(err, &envelope) && envelope != nil:
		return envelope
	default:
		return Wrap(context.Background(), CodeInternal, err, "unexpected error")
	}
}

// HTTPStatusFromCode resolves the HTTP status for an envelope code.
func HTTPStatusFromCode(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// ResponseDetails returns the envelope details callers may see. Context
// entries stay in the server log.
func ResponseDetails(envelope *errors.ErrorEnvelope) map[string]interface{} {
	if envelope == nil || len(envelope.Details) == 0 {
		return nil
	}
	details := make(map[string]interface{}, len(envelope.Details))
	for key, value := range envelope.Details {
		details[key] = value
	}
	return details
}

type HTTPErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// HTTPErrorResponse is the body of every error response.
type HTTPErrorResponse struct {
	Error HTTPErrorDetail `json:"error"`
}

// RespondWithError normalizes err and writes it as a JSON error response.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	RespondWithEnvelope(w, r, EnsureEnvelope(err))
}

// RespondWithEnvelope logs the envelope, counts it and writes the response.
// The request ID replaces any correlation ID minted outside the request.
func RespondWithEnvelope(w http.ResponseWriter, r *http.Request, envelope *errors.ErrorEnvelope) {
	if w == nil || envelope == nil {
		return
	}

	route := ""
	if r != nil {
		if requestID := middleware.GetRequestID(r.Context()); requestID != "" {
			envelope = envelope.WithCorrelationID(requestID)
		}
		route = middleware.RoutePattern(r)
	}
	if envelope.CorrelationID == "" {
		envelope = envelope.WithCorrelationID("fallback-" + errors.GenerateCorrelationID())
	}

	status := HTTPStatusFromCode(envelope.Code)
	logEnvelope(envelope, status)
	metrics.RecordError(envelope.Code, status, route)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(HTTPErrorResponse{
		Error: HTTPErrorDetail{
			Code:      envelope.Code,
			Message:   envelope.Message,
			Details:   ResponseDetails(envelope),
			RequestID: envelope.CorrelationID,
		},
	})
}

func logEnvelope(envelope *errors.ErrorEnvelope, status int) {
	logger := observability.ServerLogger
	if logger == nil {
		return
	}

	fields := []zap.Field{
		zap.String("error_code", envelope.Code),
		zap.Int("http_status", status),
		zap.String("request_id", envelope.CorrelationID),
	}
	if envelope.Severity != "" {
		fields = append(fields, zap.String("severity", string(envelope.Severity)))
	}
	for key, value := range envelope.Context {
		fields = append(fields, zap.Any(key, value))
	}

	switch envelope.Severity {
	case errors.SeverityCritical, errors.SeverityHigh:
		logger.Error(envelope.Message, fields...)
	case errors.SeverityMedium:
		logger.Warn(envelope.Message, fields...)
	default:
		logger.Info(envelope.Message, fields...)
	}
}
