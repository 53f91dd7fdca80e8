package prompt

import (
	"context"
	"fmt"
	"strings"

	"github.com/zond/mudcore/lang"
	"github.com/zond/mudcore/message"
)

// Select pushes an input frame asking question until one of options is
// given, case insensitively, or retries run out. A retried prompt starts
// with the complaint about the previous answer.
func Select(s *Stack, question string, options []string, retries int, onPick func(ctx context.Context, option string) error) {
	text := fmt.Sprintf("%s [%s] ", question, strings.Join(options, "/"))
	s.Set(PromptFunc(func(mctx message.Context) string {
		if complaint, found := mctx.String(message.LastResultKey); found && complaint != "" {
			return complaint + "\n" + text
		}
		return text
	}), message.Context{message.RetryBudgetKey: retries}, func(ctx context.Context, input string, _ []any) error {
		for _, option := range options {
			if strings.EqualFold(strings.TrimSpace(input), option) {
				return onPick(ctx, option)
			}
		}
		return fmt.Errorf("please answer %s", lang.Enumerator{Operator: "or"}.Do(options...))
	})
}
