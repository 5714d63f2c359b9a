package chat

import (
	"context"
	"fmt"

	"github.com/aiplusall/researchbench/internal/types"
)

// ChatOptions carries per-call generation parameters
type ChatOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	MaxTokens   int     `json:"max_tokens"`
	Seed        int     `json:"seed"`
}

// Message 表示聊天消息
type Message struct {
	Role    string `json:"role"`    // 角色：system, user, assistant
	Content string `json:"content"` // 消息内容
}

// Chat 定义了聊天接口
type Chat interface {
	// Chat 进行非流式聊天
	Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*types.ChatResponse, error)

	// GetModelName 获取模型名称
	GetModelName() string
}

// ChatConfig configures the remote chat backend
type ChatConfig struct {
	BaseURL   string
	ModelName string
	APIKey    string
}

// NewChat 创建聊天实例
func NewChat(config *ChatConfig) (Chat, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("%w: empty API key", types.ErrMissingCredentials)
	}
	return NewRemoteAPIChat(config)
}
