package models

// RotationDecision is the outcome of evaluating a KeySet at a point in time.
// RotationDecision 是在某个时间点评估 KeySet 的结果。
type RotationDecision struct {
	// NewActiveKid is the key to promote. Empty when no promotion happens.
	// NewActiveKid 是要提升的密钥，不提升时为空。
	NewActiveKid string
	// KeysToRetire lists kids past their retirement time, sorted. Never contains NewActiveKid.
	// KeysToRetire 列出已到退役时间的密钥（已排序），不包含 NewActiveKid。
	KeysToRetire []string
	// Inconsistent is set when the active kid does not resolve; the decision is then a no-op.
	// 当活动 kid 无法解析时设置 Inconsistent，此时决策为空操作。
	Inconsistent bool
	// ActiveOverdueWithoutSuccessor is set when the active key is past retirement but no
	// successor can be promoted. The active key keeps signing; callers must alert.
	// 当活动密钥已过退役时间但没有可提升的继任者时设置。调用方必须告警。
	ActiveOverdueWithoutSuccessor bool
}

// Promotes reports whether the decision changes the active key.
func (d RotationDecision) Promotes() bool {
	return d.NewActiveKid != ""
}

// IsNoop reports whether the decision requires no change.
func (d RotationDecision) IsNoop() bool {
	return d.NewActiveKid == "" && len(d.KeysToRetire) == 0
}
