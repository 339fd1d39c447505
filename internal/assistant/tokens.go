package assistant

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// 每条消息的角色开销估算
const messageOverhead = 4

// TokenCounter 统计文本 token 数
type TokenCounter func(text string) int

// NewTiktokenCounter 按模型选择编码，未识别的模型回退到 cl100k_base
func NewTiktokenCounter(model string) (TokenCounter, error) {
	tkm, err := tiktoken.EncodingForModel(model)
	if err != nil {
		tkm, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("加载 tiktoken 编码失败: %w", err)
		}
	}
	return func(text string) int {
		return len(tkm.Encode(text, nil, nil))
	}, nil
}

// approxCounter 按四字符一个 token 估算，编码不可用时使用
func approxCounter(text string) int {
	return (len([]rune(text)) + 3) / 4
}

// TrimHistory 从最旧的消息开始丢弃，直到总 token 数不超过 maxTokens
// 最新一条消息总会保留
func TrimHistory(history []Message, maxTokens int, count TokenCounter) []Message {
	if len(history) == 0 || maxTokens <= 0 {
		return history
	}
	if count == nil {
		count = approxCounter
	}

	costs := make([]int, len(history))
	total := 0
	for i, msg := range history {
		costs[i] = count(msg.Content) + messageOverhead
		total += costs[i]
	}

	start := 0
	for total > maxTokens && start < len(history)-1 {
		total -= costs[start]
		start++
	}
	return history[start:]
}
