// Package handlers contains the gin handlers of the ContactScope HTTP API.
package handlers

import (
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/ContactScope/internal/interfaces/http/middleware"
	"github.com/turtacn/ContactScope/pkg/errors"
	"github.com/turtacn/ContactScope/pkg/types/common"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Code      errors.ErrorCode `json:"code"`
	Message   string           `json:"message"`
	Detail    string           `json:"detail,omitempty"`
	RequestID string           `json:"request_id,omitempty"`
}

// parsePagination reads page and page_size. Bad values fall back to defaults.
func parsePagination(c *gin.Context) common.Pagination {
	p := common.Pagination{Page: 1, PageSize: defaultPageSize}
	if v, err := strconv.Atoi(c.Query("page")); err == nil && v > 0 {
		p.Page = v
	}
	if v, err := strconv.Atoi(c.Query("page_size")); err == nil && v > 0 {
		p.PageSize = v
	}
	return p.Normalize(defaultPageSize, maxPageSize)
}

func parseID(c *gin.Context) (common.ID, error) {
	id := common.ID(c.Param("id"))
	if err := id.Validate(); err != nil {
		return "", errors.InvalidParam("invalid session id").WithDetail(err.Error())
	}
	return id, nil
}

// writeAppError maps err to its status code. Internal failures are masked;
// everything else returns the error's own message.
func writeAppError(c *gin.Context, err error) {
	code := errors.GetCode(err)
	if code == errors.CodeUnknown {
		code = errors.CodeInternal
	}
	status := errors.HTTPStatusForCode(code)
	resp := ErrorResponse{
		Code:      code,
		Message:   errors.DefaultMessageForCode(code),
		RequestID: middleware.GetRequestID(c),
	}
	var ae *errors.AppError
	if status != http.StatusInternalServerError && stderrors.As(err, &ae) {
		resp.Message = ae.Message
		resp.Detail = ae.Detail
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, resp)
}

func writeBadRequest(c *gin.Context, msg string, err error) {
	appErr := errors.InvalidParam(msg)
	if err != nil {
		appErr = appErr.WithDetail(err.Error())
	}
	writeAppError(c, appErr)
}
