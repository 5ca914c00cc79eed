package connectors

import (
	"errors"
	"fmt"
)

// Error kinds drive both the retry policy and the per-user dispatch report.
// Credential and balance problems are permanent from the dispatcher's point
// of view; only transient failures are worth another attempt.
const (
	ErrKindValidation          = "validation"
	ErrKindCredential          = "credential"
	ErrKindTransient           = "transient"
	ErrKindInsufficientBalance = "insufficient_balance"
	ErrKindExchange            = "exchange"
)

// CredentialError covers invalid keys, bad signatures and IP whitelist
// rejections. Never retried; surfaced to the operator for remediation.
type CredentialError struct {
	Exchange  string
	Detail    string
	IPBlocked bool
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("%s credential rejected: %s", e.Exchange, e.Detail)
}

// TransientError covers timeouts, 5xx responses and rate-limit pushback.
type TransientError struct {
	Exchange string
	Detail   string
	Err      error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s transient failure: %s: %v", e.Exchange, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s transient failure: %s", e.Exchange, e.Detail)
}

func (e *TransientError) Unwrap() error { return e.Err }

// InsufficientBalanceError skips the user for this signal; no retry.
type InsufficientBalanceError struct {
	Exchange string
	Detail   string
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("%s insufficient balance: %s", e.Exchange, e.Detail)
}

// ExchangeError is any other rejection the exchange reported explicitly.
type ExchangeError struct {
	Exchange string
	Code     int
	Msg      string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("%s error %d: %s", e.Exchange, e.Code, e.Msg)
}

// Classify maps an error onto its kind for reporting and retry decisions.
// Unknown errors are treated as transient: the caller-side retry cap keeps
// that from looping forever.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	var credErr *CredentialError
	if errors.As(err, &credErr) {
		return ErrKindCredential
	}

	var balErr *InsufficientBalanceError
	if errors.As(err, &balErr) {
		return ErrKindInsufficientBalance
	}

	var exErr *ExchangeError
	if errors.As(err, &exErr) {
		return ErrKindExchange
	}

	var transErr *TransientError
	if errors.As(err, &transErr) {
		return ErrKindTransient
	}

	return ErrKindTransient
}

// IsRetryable reports whether the retry policy may attempt the call again.
func IsRetryable(err error) bool {
	return Classify(err) == ErrKindTransient
}

// bybitRetCodes maps Bybit v5 retCode values onto error kinds. Codes not in
// the map are plain exchange rejections.
var bybitRetCodes = map[int]string{
	10002:  ErrKindTransient,  // request not recognized in time window (clock skew)
	10003:  ErrKindCredential, // invalid api key
	10004:  ErrKindCredential, // invalid signature
	10005:  ErrKindCredential, // permission denied
	10006:  ErrKindTransient,  // rate limit exceeded
	10010:  ErrKindCredential, // unmatched IP (whitelist)
	10016:  ErrKindTransient,  // server error
	110007: ErrKindInsufficientBalance,
	110012: ErrKindInsufficientBalance,
	110052: ErrKindInsufficientBalance, // available balance below order cost
}

// binanceRetCodes does the same for Binance futures error codes.
var binanceRetCodes = map[int]string{
	-1003: ErrKindTransient,  // too many requests
	-1021: ErrKindTransient,  // timestamp outside recvWindow (clock skew)
	-2014: ErrKindCredential, // API-key format invalid
	-2015: ErrKindCredential, // invalid key, IP, or permissions
	-2019: ErrKindInsufficientBalance,
	-4046: ErrKindInsufficientBalance,
}

// ipBlockCodes are the credential rejections caused by IP whitelisting
// rather than bad key material.
var ipBlockCodes = map[int]bool{
	10010: true, // bybit: unmatched IP
}

func errorFromRetCode(exchange string, codes map[int]string, code int, msg string) error {
	switch codes[code] {
	case ErrKindCredential:
		return &CredentialError{
			Exchange:  exchange,
			Detail:    fmt.Sprintf("code %d: %s", code, msg),
			IPBlocked: ipBlockCodes[code],
		}
	case ErrKindInsufficientBalance:
		return &InsufficientBalanceError{Exchange: exchange, Detail: fmt.Sprintf("code %d: %s", code, msg)}
	case ErrKindTransient:
		return &TransientError{Exchange: exchange, Detail: fmt.Sprintf("code %d: %s", code, msg)}
	default:
		return &ExchangeError{Exchange: exchange, Code: code, Msg: msg}
	}
}
