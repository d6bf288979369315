/*
Package budget fits chat message histories under a token budget while
preserving the most recent context.

The budgeter delegates counting to an injected Counter, letting the
underlying tokenizer vary by provider:

	b := budget.NewForModel("gpt-4o", logger)

	trimmed, err := b.Truncate(history, 8000)
	if err != nil {
	    return err
	}

The output is always an ordered subsequence of the input. The last message
is always preserved; when it alone exceeds the budget its content is
hard-truncated to fit and it is returned alone. Truncation never fails for
any non-empty input — an oversized message is cut, not rejected.
*/
package budget
