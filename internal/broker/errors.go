package broker

import (
	"context"
	"errors"
	"strings"

	"github.com/adshao/go-binance/v2/common"
	"github.com/tidwall/gjson"
)

// ErrorKind classifies exchange failures so callers can apply the
// matching recovery: re-quantize on precision violations, clamp to the
// live position on reduce-only rejections, back off on rate limits.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindPrecision
	KindReduceOnly
	KindRateLimit
	KindTimeout
	KindTransient
)

func (k ErrorKind) String() string {
	switch k {
	case KindPrecision:
		return "precision"
	case KindReduceOnly:
		return "reduce-only"
	case KindRateLimit:
		return "rate-limit"
	case KindTimeout:
		return "timeout"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Retryable reports whether a single corrected retry is worth attempting.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindPrecision, KindReduceOnly, KindTimeout, KindTransient:
		return true
	default:
		return false
	}
}

// Binance futures error codes observed in rejected exit placements.
const (
	codeTooManyRequests  = -1003
	codePrecisionOver    = -1111
	codeReduceOnlyReject = -2022
	codePriceTickReject  = -4014
	codeQtyStepReject    = -4003
)

// Classify maps an exchange error to an ErrorKind. It understands
// go-binance APIError codes and falls back to probing the message for a
// serialized {"code":...} body, then to substring matching.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return classifyCode(apiErr.Code)
	}
	msg := err.Error()
	if code := gjson.Get(msg, "code"); code.Exists() {
		if k := classifyCode(code.Int()); k != KindUnknown {
			return k
		}
	}
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "precision"):
		return KindPrecision
	case strings.Contains(lower, "reduceonly"), strings.Contains(lower, "reduce only"):
		return KindReduceOnly
	case strings.Contains(lower, "too many requests"):
		return KindRateLimit
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "deadline"):
		return KindTimeout
	case strings.Contains(lower, "connection"), strings.Contains(lower, "unavailable"):
		return KindTransient
	}
	return KindUnknown
}

func classifyCode(code int64) ErrorKind {
	switch code {
	case codePrecisionOver, codePriceTickReject, codeQtyStepReject:
		return KindPrecision
	case codeReduceOnlyReject:
		return KindReduceOnly
	case codeTooManyRequests:
		return KindRateLimit
	default:
		return KindUnknown
	}
}
