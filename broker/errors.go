package broker

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredentials 构造客户端时缺少 key/secret，整次运行直接失败。
	ErrMissingCredentials = errors.New("broker credentials not configured")

	// ErrMarketClosed 开市检查明确返回闭市。仅作提示，不阻断提交。
	ErrMarketClosed = errors.New("market closed")
)

// SubmissionError 单笔订单提交失败。只影响这一笔，不影响同批其他订单。
type SubmissionError struct {
	Symbol        string
	ClientOrderID string
	StatusCode    int
	Body          string
	Err           error
}

func (e *SubmissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("submit %s (%s): %v", e.Symbol, e.ClientOrderID, e.Err)
	}
	return fmt.Sprintf("submit %s (%s): status %d: %s", e.Symbol, e.ClientOrderID, e.StatusCode, e.Body)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// PositionRetrievalError 拉取持仓失败。对账失败只记日志，不回滚已下的单。
type PositionRetrievalError struct {
	Err error
}

func (e *PositionRetrievalError) Error() string {
	return fmt.Sprintf("retrieve positions: %v", e.Err)
}

func (e *PositionRetrievalError) Unwrap() error { return e.Err }
