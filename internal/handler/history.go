package handler

import (
	"sync"
	"time"
)

// defaultHistoryLimit 内存中保留的最大问答轮数
const defaultHistoryLimit = 100

// ConversationTurn 一轮完整的问答记录
type ConversationTurn struct {
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	RowCount  int       `json:"row_count"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationHistory 进程内问答历史
// 环形缓冲语义：超过上限时丢弃最旧的记录，进程重启后清空
type ConversationHistory struct {
	mu    sync.RWMutex
	turns []ConversationTurn
	limit int
}

// NewConversationHistory 创建问答历史缓冲
func NewConversationHistory(limit int) *ConversationHistory {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return &ConversationHistory{
		turns: make([]ConversationTurn, 0, limit),
		limit: limit,
	}
}

// Append 追加一轮问答
func (h *ConversationHistory) Append(turn ConversationTurn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.turns = append(h.turns, turn)
	if len(h.turns) > h.limit {
		h.turns = h.turns[len(h.turns)-h.limit:]
	}
}

// List 返回问答记录副本，最新的在前
func (h *ConversationHistory) List() []ConversationTurn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make([]ConversationTurn, len(h.turns))
	for i, turn := range h.turns {
		result[len(h.turns)-1-i] = turn
	}
	return result
}
