package agents

import (
	"context"
	"errors"
	"log/slog"

	"github.com/pricewise-ai/pricewise/internal/governance/quota"
	"github.com/pricewise-ai/pricewise/internal/llm"
)

// narrative asks the completion service for a short prose summary of a
// stage's findings. Every failure path (no client configured, completion
// quota exhausted, provider error) degrades to the fallback text.
// Narration is never a reason to fail a run.
func narrative(ctx context.Context, rc *RunContext, stage string, messages []llm.Message, fallback string) string {
	if rc.LLM == nil {
		return fallback
	}

	if err := checkCompletionQuota(ctx, rc); err != nil {
		if errors.Is(err, quota.ErrCompletionThrottled) {
			slog.Warn(stage+": completion quota exhausted, using fallback narrative", "user_id", rc.UserID)
		} else {
			slog.Warn(stage+": completion quota check failed", "error", err)
		}
		return fallback
	}

	comp, err := rc.LLM.Complete(ctx, messages)
	if err != nil {
		slog.Warn(stage+": narrative completion failed, using fallback", "error", err)
		return fallback
	}

	recordCompletionUsage(ctx, rc, stage, comp)
	if comp.Content == "" {
		return fallback
	}
	return comp.Content
}

// structuredCompletion asks for a JSON answer decoded into out, gated by
// the same quota bookkeeping as narrative. The caller decides how to
// degrade; a returned error means out was not filled.
func structuredCompletion(ctx context.Context, rc *RunContext, stage string, messages []llm.Message, out any) error {
	if rc.LLM == nil {
		return errors.New("no completion provider configured")
	}

	if err := checkCompletionQuota(ctx, rc); err != nil {
		return err
	}

	comp, err := rc.LLM.CompleteJSON(ctx, messages, out)
	if comp != nil {
		recordCompletionUsage(ctx, rc, stage, comp)
	}
	return err
}

// A nil quota service means governance is not wired; completions run
// unmetered.
func checkCompletionQuota(ctx context.Context, rc *RunContext) error {
	if rc.Quota == nil {
		return nil
	}
	return rc.Quota.CheckCompletion(ctx, rc.UserID)
}

func recordCompletionUsage(ctx context.Context, rc *RunContext, stage string, comp *llm.Completion) {
	if rc.Quota == nil {
		return
	}
	if err := rc.Quota.RecordCompletion(ctx, rc.UserID, comp.PromptTokens+comp.CompletionTokens); err != nil {
		slog.Warn(stage+": recording completion usage", "error", err, "user_id", rc.UserID)
	}
}
