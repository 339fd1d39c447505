package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"careassist/internal/logger"
	"careassist/internal/tools"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const DefaultSystemPrompt = "You are a helpful healthcare assistant. " +
	"Use the searchDocuments tool to look up the user's uploaded medical documents before answering questions about them, " +
	"and getMedicalTestCost for questions about test prices. " +
	"Only answer from the retrieved context and say so when the documents do not contain the answer."

// ErrEmptyConversation 请求中没有用户消息
var ErrEmptyConversation = errors.New("messages must contain at least one message")

// Message 对话消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest 对话请求
type ChatRequest struct {
	Messages  []Message `json:"messages"`
	SessionID string    `json:"sessionId,omitempty"`
}

// ToolCallTrace 一次工具调用的摘要
type ToolCallTrace struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	Success   bool           `json:"success"`
}

// ChatResponse 对话回复
type ChatResponse struct {
	Reply     string          `json:"reply"`
	ToolCalls []ToolCallTrace `json:"toolCalls"`
	Steps     int             `json:"steps"`
	Usage     openai.Usage    `json:"usage"`
}

// ChatClient go-openai 客户端中 Agent 用到的部分
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ToolSet 提供给模型的工具声明
type ToolSet interface {
	ToOpenAITools() []openai.Tool
}

// Options Agent 参数
type Options struct {
	Model            string
	MaxSteps         int
	MaxHistoryTokens int
	SystemPrompt     string
	Counter          TokenCounter
	Logger           *zap.Logger
}

// Agent 带工具调用的对话助手
type Agent struct {
	client   ChatClient
	toolSet  ToolSet
	executor tools.ExecutionProvider
	opts     Options
	logger   *zap.Logger
}

// NewAgent 创建 Agent
func NewAgent(client ChatClient, toolSet ToolSet, executor tools.ExecutionProvider, opts Options) *Agent {
	if opts.Model == "" {
		opts.Model = openai.GPT4oMini
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = 5
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	if opts.Counter == nil {
		if counter, err := NewTiktokenCounter(opts.Model); err == nil {
			opts.Counter = counter
		} else {
			opts.Counter = approxCounter
		}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Agent{client: client, toolSet: toolSet, executor: executor, opts: opts, logger: log}
}

// Chat 运行一次对话，模型可以多轮调用工具，最多 MaxSteps 轮
func (a *Agent) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if len(req.Messages) == 0 {
		return nil, ErrEmptyConversation
	}

	ctx, span := otel.Tracer("careassist/assistant").Start(ctx, "assistant.chat")
	defer span.End()

	history := TrimHistory(req.Messages, a.opts.MaxHistoryTokens, a.opts.Counter)
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: a.opts.SystemPrompt,
	})
	for _, msg := range history {
		if msg.Role == openai.ChatMessageRoleSystem {
			continue
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content})
	}

	log := logger.WithContext(ctx).With(zap.String("session_id", req.SessionID))
	resp := &ChatResponse{ToolCalls: []ToolCallTrace{}}
	toolDefs := a.toolSet.ToOpenAITools()

	for step := 1; step <= a.opts.MaxSteps; step++ {
		resp.Steps = step
		chatReq := openai.ChatCompletionRequest{
			Model:    a.opts.Model,
			Messages: messages,
		}
		// 最后一轮不再提供工具，迫使模型给出回答
		if step < a.opts.MaxSteps && len(toolDefs) > 0 {
			chatReq.Tools = toolDefs
		}

		completion, err := a.client.CreateChatCompletion(ctx, chatReq)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "chat completion failed")
			return nil, fmt.Errorf("对话补全失败 (step %d): %w", step, err)
		}
		addUsage(&resp.Usage, completion.Usage)
		if len(completion.Choices) == 0 {
			return nil, fmt.Errorf("API 返回空响应 (step %d)", step)
		}

		reply := completion.Choices[0].Message
		if len(reply.ToolCalls) == 0 {
			resp.Reply = reply.Content
			span.SetAttributes(attribute.Int("steps", step), attribute.Int("tool_calls", len(resp.ToolCalls)))
			return resp, nil
		}

		messages = append(messages, reply)
		for _, call := range reply.ToolCalls {
			trace, content := a.runTool(ctx, call, req.SessionID)
			resp.ToolCalls = append(resp.ToolCalls, trace)
			log.Debug("工具调用完成", zap.String("tool", trace.Name), zap.Bool("success", trace.Success))
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    content,
				Name:       call.Function.Name,
				ToolCallID: call.ID,
			})
		}
	}

	// 工具调用轮数耗尽
	log.Warn("对话达到最大轮数", zap.Int("max_steps", a.opts.MaxSteps))
	return resp, nil
}

func (a *Agent) runTool(ctx context.Context, call openai.ToolCall, sessionID string) (ToolCallTrace, string) {
	args := map[string]any{}
	if call.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			msg := fmt.Sprintf("Invalid arguments for %s: %v", call.Function.Name, err)
			return ToolCallTrace{Name: call.Function.Name, Arguments: args}, msg
		}
	}

	result := a.executor.Execute(ctx, &tools.ExecutionRequest{
		ToolName:  call.Function.Name,
		Input:     args,
		Source:    "agent",
		SessionID: sessionID,
	})
	return ToolCallTrace{Name: call.Function.Name, Arguments: args, Success: result.Success}, result.Text()
}

func addUsage(total *openai.Usage, u openai.Usage) {
	total.PromptTokens += u.PromptTokens
	total.CompletionTokens += u.CompletionTokens
	total.TotalTokens += u.TotalTokens
}
