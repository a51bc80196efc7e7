package signal

import (
	"fmt"
	"regexp"
)

// 支持美股（AAPL）、英股（AZN.L）与加密货币（BTC-USD）三类代码。
var tickerPattern = regexp.MustCompile(`^[A-Z]{1,5}(\.L)?(-USD)?$`)

// ValidationError 输入信号不满足 schema 约束。
// 整批校验失败时不做任何计算，调用方不得继续下单。
type ValidationError struct {
	Ticker string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Ticker == "" {
		return fmt.Sprintf("signal validation: %s %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("signal validation: %s: %s %s", e.Ticker, e.Field, e.Reason)
}

// ValidTicker 判断单个代码格式是否合法。
func ValidTicker(ticker string) bool {
	return tickerPattern.MatchString(ticker)
}

// ValidateBatch 对整批信号做 schema 检查。任意一条失败即整批失败。
func ValidateBatch(signals []Signal) error {
	for _, s := range signals {
		if !ValidTicker(s.Ticker) {
			return &ValidationError{Ticker: s.Ticker, Field: "ticker", Reason: "invalid format"}
		}
		if s.Probability < 0 || s.Probability > 1 {
			return &ValidationError{Ticker: s.Ticker, Field: "probability", Reason: fmt.Sprintf("%.4f outside [0,1]", s.Probability)}
		}
		if s.Direction != DirectionLong && s.Direction != DirectionFlat {
			return &ValidationError{Ticker: s.Ticker, Field: "direction", Reason: fmt.Sprintf("unknown value %q", s.Direction)}
		}
		if s.Price < 0 {
			return &ValidationError{Ticker: s.Ticker, Field: "price", Reason: "negative"}
		}
	}
	return nil
}
