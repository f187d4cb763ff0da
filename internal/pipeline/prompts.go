package pipeline

import (
	"strings"

	"github.com/dvloznov/statement-ingest/internal/categorize"
)

// buildStatementPrompt asks the model for a strict JSON array of transactions
// labelled with the fixed category set.
func buildStatementPrompt() string {
	var b strings.Builder

	b.WriteString("You are a financial statement parser for bank statements.\n\n")
	b.WriteString("Task:\n")
	b.WriteString("- Parse ALL transactions in the attached statement.\n")
	b.WriteString("- Output STRICT JSON only (no comments, no trailing commas, no extra text).\n")
	b.WriteString("- Output a JSON array of objects.\n\n")
	b.WriteString("Each object must have these fields:\n")
	b.WriteString("- \"date\": string, ISO format \"YYYY-MM-DD\"\n")
	b.WriteString("- \"description\": string, exactly as printed\n")
	b.WriteString("- \"amount\": number (positive for money IN, negative for money OUT)\n")
	b.WriteString("- \"category\": string or null\n\n")

	b.WriteString("Use ONLY the following categories:\n")
	for _, c := range categorize.Labels() {
		b.WriteString("  - " + string(c) + "\n")
	}
	b.WriteString("If you are unsure, use null for category.\n\n")

	b.WriteString("Rules:\n")
	b.WriteString("- If the statement has separate \"paid out\" / \"paid in\" columns, convert to a single signed \"amount\".\n")
	b.WriteString("- Skip opening balance, closing balance and running total lines.\n")
	b.WriteString("- Skip lines whose amount is zero.\n\n")
	b.WriteString("Return ONLY valid raw JSON.\n")
	b.WriteString("Do NOT wrap the response in code fences.\n")
	b.WriteString("Output must begin with \"[\" and end with \"]\".\n")

	return b.String()
}
