// internal/compare/compare.go
package compare

import (
	"fmt"
	"strings"

	"replaylab/internal/replay"
)

const (
	previewLen         = 200
	markdownPreviewLen = 50
)

// CompareBranches aggregates branch results into a summary. Results arrive
// in whatever order branches finished; nothing here depends on it. Metrics
// cover successful branches only and are omitted entirely when every
// branch failed.
func CompareBranches(results []replay.BranchResult) *replay.Summary {
	summary := &replay.Summary{
		TotalBranches: len(results),
		Branches:      make(map[string]replay.BranchSummary, len(results)),
	}

	var successful []replay.BranchResult
	for _, r := range results {
		if r.Status == replay.StatusSuccess {
			successful = append(successful, r)
		} else {
			summary.Failed++
		}
	}
	summary.Successful = len(successful)

	for _, r := range results {
		bs := replay.BranchSummary{
			Status:       r.Status,
			DurationMs:   r.DurationMs,
			MessageCount: len(r.Messages),
			Model:        r.Config.Model,
			Tokens:       r.TokenUsage,
			Error:        r.Error,
		}
		if len(r.Messages) > 0 {
			bs.OutputPreview = truncate(r.Messages[len(r.Messages)-1].Content, previewLen)
		}
		summary.Branches[r.BranchName] = bs
	}

	if len(successful) > 0 {
		metrics := &replay.Metrics{
			MinDurationMs: successful[0].DurationMs,
			MaxDurationMs: successful[0].DurationMs,
		}
		var totalDuration int64
		for _, r := range successful {
			totalDuration += r.DurationMs
			if r.DurationMs < metrics.MinDurationMs {
				metrics.MinDurationMs = r.DurationMs
			}
			if r.DurationMs > metrics.MaxDurationMs {
				metrics.MaxDurationMs = r.DurationMs
			}
		}
		metrics.AvgDurationMs = totalDuration / int64(len(successful))

		var totalTokens, tokenCount int64
		for _, r := range successful {
			if r.TokenUsage != nil {
				totalTokens += r.TokenUsage.TotalTokens
				tokenCount++
			}
		}
		if tokenCount > 0 {
			avg := totalTokens / tokenCount
			metrics.AvgTokens = &avg
		}

		summary.Metrics = metrics
	}

	return summary
}

// FormatMarkdown renders a comparison result as a deterministic Markdown
// report: header, one table row per branch, optional summary section.
func FormatMarkdown(comparison *replay.ComparisonResult) string {
	var sb strings.Builder

	sb.WriteString("# Fork & Compare Results\n\n")
	fmt.Fprintf(&sb, "**Conversation:** %s\n", comparison.Checkpoint.ConversationID)
	fmt.Fprintf(&sb, "**Fork at step:** %d\n", comparison.Checkpoint.Step)
	fmt.Fprintf(&sb, "**Total duration:** %dms\n\n", comparison.TotalDurationMs)

	sb.WriteString("## Branch Results\n\n")
	sb.WriteString("| Branch | Model | Status | Duration | Tokens | Output Preview |\n")
	sb.WriteString("|--------|-------|--------|----------|--------|----------------|\n")

	for _, r := range comparison.Branches {
		tokens := "-"
		if r.TokenUsage != nil {
			tokens = fmt.Sprintf("%d", r.TokenUsage.TotalTokens)
		}

		preview := ""
		if len(r.Messages) > 0 {
			last := r.Messages[len(r.Messages)-1].Content
			preview = strings.ReplaceAll(truncate(last, markdownPreviewLen), "\n", " ")
			if len(last) > markdownPreviewLen {
				preview += "..."
			}
		}

		fmt.Fprintf(&sb, "| %s | %s | %s | %dms | %s | %s |\n",
			r.BranchName, modelShortName(r.Config.Model), r.Status, r.DurationMs, tokens, preview)
	}

	if summary := comparison.ComparisonSummary; summary != nil && summary.Metrics != nil {
		sb.WriteString("\n## Summary\n\n")
		fmt.Fprintf(&sb, "- **Average duration:** %dms\n", summary.Metrics.AvgDurationMs)
		if summary.Metrics.AvgTokens != nil {
			fmt.Fprintf(&sb, "- **Average tokens:** %d\n", *summary.Metrics.AvgTokens)
		} else {
			sb.WriteString("- **Average tokens:** -\n")
		}
	}

	return sb.String()
}

// modelShortName keeps only the last path segment of a model identifier
func modelShortName(model string) string {
	if idx := strings.LastIndex(model, "/"); idx >= 0 {
		return model[idx+1:]
	}
	return model
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
