package v1

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"lootbox-hub/internal/api/middleware"
	"lootbox-hub/internal/api/response"
	"lootbox-hub/internal/service"
	"lootbox-hub/pkg/fairness"
)

// fingerprintHeaders are the client signals hashed into a device fingerprint.
var fingerprintHeaders = []string{"User-Agent", "Accept-Language", "X-Client-Fingerprint"}

func parseIntOrDefault(raw string, def int) int {
	if strings.TrimSpace(raw) == "" {
		return def
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return def
	}
	return value
}

func pageParams(c *gin.Context) (int, int) {
	return parseIntOrDefault(c.Query("page"), 1), parseIntOrDefault(c.Query("page_size"), 20)
}

func requireActor(c *gin.Context) (service.Actor, bool) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized, "unauthorized")
		return service.Actor{}, false
	}
	return actor, true
}

func optionalQuery(c *gin.Context, name string) *string {
	value := strings.TrimSpace(c.Query(name))
	if value == "" {
		return nil
	}
	return &value
}

// timeRange reads the from/to query pair as RFC 3339 instants or plain
// dates. A plain-date "to" covers that whole day. On a bad value it writes
// the 400 and reports false.
func timeRange(c *gin.Context) (from, to time.Time, ok bool) {
	var err error
	if from, _, err = parseQueryTime(c.Query("from")); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "invalid from")
		return time.Time{}, time.Time{}, false
	}
	var dateOnly bool
	if to, dateOnly, err = parseQueryTime(c.Query("to")); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "invalid to")
		return time.Time{}, time.Time{}, false
	}
	if dateOnly {
		to = to.Add(24*time.Hour - time.Nanosecond)
	}
	return from, to, true
}

func parseQueryTime(raw string) (time.Time, bool, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, false, nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts.UTC(), false, nil
	}
	ts, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, false, err
	}
	return ts, true, nil
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param(name)))
	if err != nil || id == uuid.Nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func parseUUIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, value := range raw {
		id, err := uuid.Parse(strings.TrimSpace(value))
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func fingerprintInputs(c *gin.Context) map[string]string {
	inputs := map[string]string{"ip": c.ClientIP()}
	for _, header := range fingerprintHeaders {
		if value := strings.TrimSpace(c.GetHeader(header)); value != "" {
			inputs[strings.ToLower(header)] = value
		}
	}
	return inputs
}

func clientFingerprint(c *gin.Context) string {
	return fairness.Fingerprint(fingerprintInputs(c))
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
// Policy violations carry their correcting details to the caller; invariant
// and internal failures never leak internals.
func writeServiceError(c *gin.Context, logger *zap.Logger, err error) {
	var typed *service.Error
	if !errors.As(err, &typed) {
		if logger != nil {
			logger.Error("request failed",
				zap.String("request_id", middleware.RequestID(c)),
				zap.String("path", c.FullPath()),
				zap.Error(err),
			)
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "internal error")
		return
	}

	switch typed.Kind {
	case service.KindNotFound:
		response.FailWithDetails(c, http.StatusNotFound, response.ErrNotFound, typed.Message, typed.Code, typed.Details)
	case service.KindInvalidState:
		response.FailWithDetails(c, http.StatusConflict, response.ErrInvalidState, typed.Message, typed.Code, typed.Details)
	case service.KindPolicyViolation:
		response.FailWithDetails(c, http.StatusUnprocessableEntity, response.ErrPolicyViolation, typed.Message, typed.Code, typed.Details)
	case service.KindForbidden:
		response.Fail(c, http.StatusForbidden, response.ErrForbidden, "forbidden")
	case service.KindInvalidInput:
		response.FailWithDetails(c, http.StatusBadRequest, response.ErrInvalidInput, typed.Message, typed.Code, typed.Details)
	case service.KindInvariantViolation:
		response.Fail(c, http.StatusInternalServerError, response.ErrInvariantViolation, "operation aborted")
	default:
		if logger != nil {
			logger.Error("request failed",
				zap.String("request_id", middleware.RequestID(c)),
				zap.String("path", c.FullPath()),
				zap.Error(err),
			)
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "internal error")
	}
}
