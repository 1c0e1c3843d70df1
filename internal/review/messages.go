package review

import (
	"fmt"
	"strings"

	"horse.fit/echocave/internal/db"
)

// User-facing messages stay in the bot's native Chinese; the chat surface
// relays them verbatim.

func kindLabel(kind db.HashKind) string {
	if kind == db.HashImage {
		return "图片"
	}
	return "文本"
}

func MsgNoContent() string {
	return "没有可收录的内容"
}

func MsgSimilarityReject(priorID int64, kind db.HashKind, similarity float64) string {
	return fmt.Sprintf("与已有回声过于相似：id %d（%s相似度 %.2f%%），已取消收录", priorID, kindLabel(kind), similarity)
}

func MsgSemanticReject(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return fmt.Sprintf("内容与已有回声重复：id %s，已取消收录", strings.Join(parts, "、"))
}

func MsgAILowRating(rating int) string {
	return fmt.Sprintf("AI审核未通过（评分 %d），已取消收录", rating)
}

func MsgProcessingFailed(err error) string {
	return fmt.Sprintf("处理失败: %v", err)
}

func MsgPending(id int64) string {
	return fmt.Sprintf("回声 %d 已提交人工审核", id)
}

func MsgAccepted(id int64) string {
	return fmt.Sprintf("回声 %d 已收录", id)
}
