package analysis

import (
	"fmt"

	"github.com/zitemo/livecards/pkg/types"
)

// plan produces analysis_focus, a single Chinese sentence describing what
// the host should pay attention to next, derived from topics, vibe, and
// question density.
func plan(topics []types.TopicCandidate, vibe types.Vibe, questionCount int, windowSec float64) string {
	questionDensityHigh := windowSec > 0 && float64(questionCount)/windowSec*60 >= 10

	switch {
	case questionDensityHigh && len(topics) > 0:
		return fmt.Sprintf("观众提问集中在「%s」相关话题，建议优先回应这些问题。", topics[0].Topic)
	case questionDensityHigh:
		return "观众提问较多，建议暂停介绍新内容，集中回答弹幕问题。"
	case vibe.Level == types.VibeQuiet:
		return "互动气氛较冷，建议抛出一个话题或福利来带动节奏。"
	case vibe.Level == types.VibeOnFire && len(topics) > 0:
		return fmt.Sprintf("气氛火爆，「%s」话题热度高，可趁势深入讲解。", topics[0].Topic)
	case len(topics) > 0:
		return fmt.Sprintf("当前讨论热度集中在「%s」，可顺势延展话题。", topics[0].Topic)
	default:
		return "当前弹幕信号较少，建议保持当前节奏并观察后续反馈。"
	}
}
