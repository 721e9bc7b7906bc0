package observers

import (
	"context"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/tool"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	logx "github.com/smart-librarian/server/pkg/logger"
)

// newToolHandler logs tool dispatch without echoing full summaries.
func newToolHandler() *callbackHelper.ToolCallbackHandler {
	return &callbackHelper.ToolCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *tool.CallbackInput) context.Context {
			evt := logx.Debug().Str("tool", info.Name)
			if input != nil {
				evt = evt.Str("arguments", truncate(input.ArgumentsInJSON, 300))
			}
			evt.Msg("tool call start")
			return ctx
		},
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *tool.CallbackOutput) context.Context {
			evt := logx.Debug().Str("tool", info.Name)
			if output != nil {
				evt = evt.Int("response_bytes", len(output.Response))
			}
			evt.Msg("tool call end")
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Warn().Err(err).Str("tool", info.Name).Msg("tool call failed")
			return ctx
		},
	}
}
