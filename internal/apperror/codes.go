package apperror

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	// General validation
	CodeRequiredField   Code = "REQUIRED_FIELD"
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeInvalidState    Code = "INVALID_STATE"
	CodeNotFound        Code = "NOT_FOUND"
	CodeValidationError Code = "VALIDATION_ERROR"

	// Configuration
	CodeConfigurationError Code = "CONFIGURATION_ERROR"

	// External service errors
	CodeServiceTimeout     Code = "SERVICE_TIMEOUT"
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
	CodeRateLimitExceeded  Code = "RATE_LIMIT_EXCEEDED"

	// System errors
	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// Exchange error codes
const (
	// NetworkError is a transport failure, timeout, 5xx or throttling answer.
	CodeNetworkError Code = "NETWORK_ERROR"
	// ExchangeError is a request the exchange understood and rejected.
	CodeExchangeError Code = "EXCHANGE_ERROR"

	CodeMarketNotFound       Code = "MARKET_NOT_FOUND"
	CodeOrderbookFetchFailed Code = "ORDERBOOK_FETCH_FAILED"
	CodeInvalidOrderbook     Code = "INVALID_ORDERBOOK"
	CodeOrderNotFound        Code = "ORDER_NOT_FOUND"
	CodeInsufficientBalance  Code = "INSUFFICIENT_BALANCE"

	// WebSocket errors
	CodeWebSocketConnectionError Code = "WEBSOCKET_CONNECTION_ERROR"
	CodeWebSocketClosed          Code = "WEBSOCKET_CLOSED"
	CodeWebSocketSendError       Code = "WEBSOCKET_SEND_ERROR"

	// Circuit breaker errors
	CodeCircuitOpen Code = "CIRCUIT_OPEN"
)

// Arbitrage error codes
const (
	CodeInsufficientLiquidity Code = "INSUFFICIENT_LIQUIDITY"
	CodeUndefinedPrice        Code = "UNDEFINED_PRICE"
	CodePrecisionViolation    Code = "PRECISION_VIOLATION"
	CodeOrderPlacementFailed  Code = "ORDER_PLACEMENT_FAILED"
	CodeBackoffExhausted      Code = "BACKOFF_EXHAUSTED"
	CodeLedgerWriteFailed     Code = "LEDGER_WRITE_FAILED"
)
