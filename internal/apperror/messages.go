package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	// General validation
	CodeRequiredField:   "Required field is missing",
	CodeInvalidInput:    "Invalid input provided",
	CodeInvalidState:    "Invalid state for this operation",
	CodeNotFound:        "Resource not found",
	CodeValidationError: "Validation error",

	// Configuration
	CodeConfigurationError: "Configuration error",

	// External service errors
	CodeServiceTimeout:     "Service request timeout",
	CodeServiceUnavailable: "Service temporarily unavailable",
	CodeRateLimitExceeded:  "Rate limit exceeded",

	// System errors
	CodeInternalError: "Internal server error",
	CodeUnknownError:  "An unknown error occurred",

	// Exchange errors
	CodeNetworkError:         "Exchange network error",
	CodeExchangeError:        "Exchange rejected the request",
	CodeMarketNotFound:       "Market not found",
	CodeOrderbookFetchFailed: "Failed to fetch orderbook",
	CodeInvalidOrderbook:     "Invalid orderbook data",
	CodeOrderNotFound:        "Order not found",
	CodeInsufficientBalance:  "Insufficient balance",

	// WebSocket errors
	CodeWebSocketConnectionError: "WebSocket connection error",
	CodeWebSocketClosed:          "WebSocket connection closed",
	CodeWebSocketSendError:       "Failed to send WebSocket message",

	// Circuit breaker errors
	CodeCircuitOpen: "Circuit breaker is open",

	// Arbitrage errors
	CodeInsufficientLiquidity: "Insufficient liquidity for trade size",
	CodeUndefinedPrice:        "Pondered price is undefined for an empty fill",
	CodePrecisionViolation:    "Quantity violates market limits after rounding",
	CodeOrderPlacementFailed:  "Order placement failed",
	CodeBackoffExhausted:      "Consecutive error budget exhausted",
	CodeLedgerWriteFailed:     "Failed to write ledger record",
}
