package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	apperrors "statement-analyzer/internal/common/errors"
	"statement-analyzer/internal/common/logger"
	"statement-analyzer/internal/common/validation"
	analyzestatement "statement-analyzer/internal/workers/fact-check/analyze-statement"

	"github.com/gin-gonic/gin"
)

const maxRequestBytes = 64 << 10

type handlers struct {
	analyzer Analyzer
	logger   logger.Logger
	ready    func(ctx context.Context) error
}

type analyzeRequest struct {
	Statement string `json:"statement"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorDetail `json:"error"`
}

func errorBody(code, message string) errorResponse {
	return errorResponse{Error: errorDetail{Code: code, Message: message}}
}

func (h *handlers) analyze(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRequestBytes))
	if err != nil {
		h.writeError(c, apperrors.NewValidationError("request body could not be read"))
		return
	}

	if result := validation.AnalyzeRequestValidator().ValidateBytes(body); !result.Valid {
		h.writeError(c, apperrors.NewValidationError(result.Summary()))
		return
	}

	var req analyzeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeError(c, apperrors.NewValidationError("request body is not valid JSON"))
		return
	}

	output, err := h.analyzer.Execute(c.Request.Context(), &analyzestatement.Input{Statement: req.Statement})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, output)
}

// writeError renders err as {"error":{"code","message"}}. Upstream details stay
// in the logs; validation details describe the caller's own input and are
// returned.
func (h *handlers) writeError(c *gin.Context, err error) {
	stdErr := apperrors.Normalize(err)

	message := stdErr.Message
	if stdErr.Code == apperrors.ErrCodeValidation && stdErr.Details != "" {
		message = stdErr.Details
	}

	if h.logger != nil && stdErr.Code != apperrors.ErrCodeValidation {
		h.logger.Error("analysis failed", map[string]interface{}{
			"requestId": c.GetString(requestIDKey),
			"errorCode": string(stdErr.Code),
			"service":   stdErr.Service,
			"details":   stdErr.Details,
		})
	}

	c.AbortWithStatusJSON(apperrors.HTTPStatus(stdErr.Code), errorBody(string(stdErr.Code), message))
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (h *handlers) readiness(c *gin.Context) {
	if h.ready != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if err := h.ready(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not ready",
				"time":   time.Now().Format(time.RFC3339),
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Format(time.RFC3339),
	})
}
