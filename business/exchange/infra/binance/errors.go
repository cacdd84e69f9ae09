package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/fd1az/triarb-bot/internal/apperror"
)

// Binance error codes with a dedicated mapping.
const (
	codeUnknownOrder        = -2013
	codeInsufficientBalance = -2010
)

// APIError represents an error response from Binance API.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       int    `json:"code"`
	Message    string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance API error %d (HTTP %d): %s", e.Code, e.StatusCode, e.Message)
}

// binanceErrorHandler parses Binance API error responses.
func binanceErrorHandler(statusCode int, body []byte) error {
	if statusCode < 400 {
		return nil
	}
	apiErr := &APIError{StatusCode: statusCode}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Code == 0 {
		apiErr.Message = string(body)
	}
	return apiErr
}

// transient reports statuses Binance uses for overload, bans and outages.
func transient(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusTeapot || status >= 500
}

// classify maps a raw client error onto the network/exchange taxonomy.
// Cancellation passes through untouched so shutdown is not mistaken for an
// outage.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if transient(apiErr.StatusCode) {
			return apperror.New(apperror.CodeNetworkError,
				apperror.WithContext(op),
				apperror.WithStatusCode(apiErr.StatusCode),
				apperror.WithCause(apiErr))
		}
		switch apiErr.Code {
		case codeInsufficientBalance:
			return apperror.New(apperror.CodeInsufficientBalance,
				apperror.WithContext(op), apperror.WithStatusCode(apiErr.StatusCode), apperror.WithCause(apiErr))
		case codeUnknownOrder:
			return apperror.New(apperror.CodeOrderNotFound,
				apperror.WithContext(op), apperror.WithStatusCode(apiErr.StatusCode), apperror.WithCause(apiErr))
		}
		return apperror.Exchange(op, apiErr.StatusCode, apiErr)
	}

	if apperror.IsAppError(err) {
		return err
	}
	return apperror.Network(op, err)
}
