package signal

// Filter 从一批信号里挑出可下单的行：方向为 long 且概率达到门槛。
// 空结果不是错误，表示本周期无事可做。
type Filter struct {
	MinProbability float64
}

// Apply 返回满足条件的信号，保持输入顺序。
func (f Filter) Apply(signals []Signal) []Signal {
	out := make([]Signal, 0, len(signals))
	for _, s := range signals {
		if s.Direction != DirectionLong {
			continue
		}
		if s.Probability < f.MinProbability {
			continue
		}
		out = append(out, s)
	}
	return out
}
