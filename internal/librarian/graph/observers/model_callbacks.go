package observers

import (
	"context"
	"strings"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	logx "github.com/smart-librarian/server/pkg/logger"
)

// newModelHandler logs the model lifecycle around every generation round.
func newModelHandler() *callbackHelper.ModelCallbackHandler {
	return &callbackHelper.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *model.CallbackInput) context.Context {
			evt := logx.Debug().Str("model", info.Name)
			if input != nil {
				evt = evt.Int("messages", len(input.Messages))
				if um := lastUserContent(input.Messages); um != "" {
					evt = evt.Str("user", truncate(um, 200))
				}
			}
			evt.Msg("model call start")
			return ctx
		},
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *model.CallbackOutput) context.Context {
			evt := logx.Debug().Str("model", info.Name)
			if output != nil && output.Message != nil {
				evt = evt.Int("tool_calls", len(output.Message.ToolCalls)).
					Str("assistant", truncate(strings.TrimSpace(output.Message.Content), 200))
				if output.Message.ResponseMeta != nil && output.Message.ResponseMeta.Usage != nil {
					evt = evt.Int("total_tokens", output.Message.ResponseMeta.Usage.TotalTokens)
				}
			}
			evt.Msg("model call end")
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Warn().Err(err).Str("model", info.Name).Msg("model call failed")
			return ctx
		},
	}
}

func lastUserContent(msgs []*schema.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m == nil {
			continue
		}
		if m.Role == schema.User {
			return strings.TrimSpace(m.Content)
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
