package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	// General validation
	CodeRequiredField:   "Required field is missing",
	CodeInvalidInput:    "Invalid input provided",
	CodeInvalidFormat:   "Invalid data format",
	CodeInvalidState:    "Invalid state for this operation",
	CodeNotFound:        "Resource not found",
	CodeValidationError: "Validation error",

	// Configuration
	CodeConfigurationError: "Configuration error",

	// External service errors
	CodeExternalServiceError: "External service error",
	CodeServiceTimeout:       "Service request timeout",
	CodeServiceUnavailable:   "Service temporarily unavailable",
	CodeRateLimitExceeded:    "Rate limit exceeded",

	// System errors
	CodeInternalError: "Internal server error",
	CodeUnknownError:  "An unknown error occurred",

	// Venue/liquidity feed errors
	CodeVenueConnectionFailed: "Failed to connect to venue",
	CodeVenueMalformedData:    "Venue returned malformed data",
	CodeVenueRateLimited:      "Venue rate limit exceeded",
	CodeEdgeStale:             "Edge exceeds staleness bound",
	CodePoolReadFailed:        "Failed to read pool state",
	CodeContractCallFailed:    "Smart contract call failed",

	// WebSocket errors
	CodeWebSocketConnectionError: "WebSocket connection error",
	CodeWebSocketReconnecting:    "WebSocket reconnecting",
	CodeWebSocketClosed:          "WebSocket connection closed",
	CodeWebSocketSendError:       "Failed to send WebSocket message",

	// Discovery/validation errors
	CodeSearchExhausted:       "No cycle cleared the profitability floors",
	CodeBelowProfitFloor:      "Net profit below configured floor",
	CodeInsufficientLiquidity: "Insufficient liquidity for trade size",
	CodeInvalidTradeSize:      "Invalid trade size",
	CodeOpportunityExpired:    "Opportunity expired before execution",

	// Execution errors
	CodeLockContention:       "Route already in flight",
	CodeStepFailurePreFunds:  "Step rejected before funds moved",
	CodeStepFailurePostFunds: "Step failed after funds moved",
	CodeChannelTimeout:       "Submission channel timed out, outcome unknown",
	CodeSubmissionFailed:     "Trade submission failed",
	CodeGasEstimationFailed:  "Gas estimation failed",
	CodeLedgerWriteFailed:    "Failed to append execution record",
	CodeBalanceUnavailable:   "Failed to read wallet balance",
	CodeUnknownToken:         "Token has no configured contract address",

	// Risk governance errors
	CodeCircuitOpen:         "Circuit breaker is open",
	CodeCircuitHalfOpen:     "Circuit breaker is half-open",
	CodePositionLimit:       "Position size limit exceeded",
	CodeDailyLossLimit:      "Daily loss limit exceeded",
	CodeConsecutiveLossStop: "Consecutive loss limit exceeded",
}
