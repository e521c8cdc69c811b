package apperror

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	// General validation
	CodeRequiredField   Code = "REQUIRED_FIELD"
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeInvalidFormat   Code = "INVALID_FORMAT"
	CodeInvalidState    Code = "INVALID_STATE"
	CodeNotFound        Code = "NOT_FOUND"
	CodeValidationError Code = "VALIDATION_ERROR"

	// Configuration
	CodeConfigurationError Code = "CONFIGURATION_ERROR"

	// External service errors
	CodeExternalServiceError Code = "EXTERNAL_SERVICE_ERROR"
	CodeServiceTimeout       Code = "SERVICE_TIMEOUT"
	CodeServiceUnavailable   Code = "SERVICE_UNAVAILABLE"
	CodeRateLimitExceeded    Code = "RATE_LIMIT_EXCEEDED"

	// System errors
	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// Venue/liquidity feed error codes
const (
	CodeVenueConnectionFailed Code = "VENUE_CONNECTION_FAILED"
	CodeVenueMalformedData    Code = "VENUE_MALFORMED_DATA"
	CodeVenueRateLimited      Code = "VENUE_RATE_LIMITED"
	CodeEdgeStale             Code = "EDGE_STALE"
	CodePoolReadFailed        Code = "POOL_READ_FAILED"
	CodeContractCallFailed    Code = "CONTRACT_CALL_FAILED"

	// WebSocket errors
	CodeWebSocketConnectionError Code = "WEBSOCKET_CONNECTION_ERROR"
	CodeWebSocketReconnecting    Code = "WEBSOCKET_RECONNECTING"
	CodeWebSocketClosed          Code = "WEBSOCKET_CLOSED"
	CodeWebSocketSendError       Code = "WEBSOCKET_SEND_ERROR"
)

// Discovery/validation error codes
const (
	CodeSearchExhausted       Code = "SEARCH_EXHAUSTED"
	CodeBelowProfitFloor      Code = "BELOW_PROFIT_FLOOR"
	CodeInsufficientLiquidity Code = "INSUFFICIENT_LIQUIDITY"
	CodeInvalidTradeSize      Code = "INVALID_TRADE_SIZE"
	CodeOpportunityExpired    Code = "OPPORTUNITY_EXPIRED"
)

// Execution error codes
const (
	CodeLockContention       Code = "LOCK_CONTENTION"
	CodeStepFailurePreFunds  Code = "STEP_FAILURE_PRE_FUNDS"
	CodeStepFailurePostFunds Code = "STEP_FAILURE_POST_FUNDS"
	CodeChannelTimeout       Code = "CHANNEL_TIMEOUT"
	CodeSubmissionFailed     Code = "SUBMISSION_FAILED"
	CodeGasEstimationFailed  Code = "GAS_ESTIMATION_FAILED"
	CodeLedgerWriteFailed    Code = "LEDGER_WRITE_FAILED"
	CodeBalanceUnavailable   Code = "BALANCE_UNAVAILABLE"
	CodeUnknownToken         Code = "UNKNOWN_TOKEN"
)

// Risk governance error codes
const (
	CodeCircuitOpen         Code = "CIRCUIT_OPEN"
	CodeCircuitHalfOpen     Code = "CIRCUIT_HALF_OPEN"
	CodePositionLimit       Code = "POSITION_LIMIT_EXCEEDED"
	CodeDailyLossLimit      Code = "DAILY_LOSS_LIMIT_EXCEEDED"
	CodeConsecutiveLossStop Code = "CONSECUTIVE_LOSS_STOP"
)

// Cache errors
const (
	CodeCacheMiss    Code = "CACHE_MISS"
	CodeCacheExpired Code = "CACHE_EXPIRED"
)
