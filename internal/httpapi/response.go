package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/alemoreirac/maria-aux-back/internal/gateway"
)

// StatusClientClosedRequest is the non-standard status used when the caller
// went away before a response was produced.
const StatusClientClosedRequest = 499

// Response is the envelope every API route answers with.
type Response struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func success(c *gin.Context, status int, data any) {
	c.JSON(status, Response{Code: "ok", Message: "success", Data: data})
}

func fail(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, Response{Code: code, Message: message})
}

// failKind answers with the status mapped from a gateway error kind.
func failKind(c *gin.Context, err error) {
	var ge *gateway.Error
	if !errors.As(err, &ge) {
		fail(c, http.StatusInternalServerError, gateway.KindPersistenceFailure.String(), "internal error")
		return
	}
	msg := ge.Message
	if ge.Kind == gateway.KindPersistenceFailure {
		// Storage errors can leak DSNs or SQL.
		msg = "internal error"
	}
	c.AbortWithStatusJSON(statusFor(ge), errorBody{
		Code:     ge.Kind.String(),
		Message:  msg,
		Provider: ge.Provider,
		Timeout:  ge.Timeout,
	})
}

type errorBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Provider string `json:"provider,omitempty"`
	Timeout  bool   `json:"timeout,omitempty"`
}

func statusFor(ge *gateway.Error) int {
	switch ge.Kind {
	case gateway.KindInsufficientCredit:
		return http.StatusPaymentRequired
	case gateway.KindPromptNotFound:
		return http.StatusNotFound
	case gateway.KindInvalidProvider, gateway.KindMissingPayload, gateway.KindUnsupportedPromptType, gateway.KindBadRequest:
		return http.StatusBadRequest
	case gateway.KindRateLimited:
		return http.StatusTooManyRequests
	case gateway.KindCanceled:
		return StatusClientClosedRequest
	case gateway.KindUpstreamProviderFailure:
		if ge.Timeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
