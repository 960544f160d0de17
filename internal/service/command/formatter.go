package command

import (
	"fmt"
	"strings"

	"github.com/sandevgo/recall/internal/core"
)

// ResponseFormatter renders command replies as Markdown. Transports convert
// it to their own markup.
type ResponseFormatter struct{}

func NewResponseFormatter() *ResponseFormatter {
	return &ResponseFormatter{}
}

func (f *ResponseFormatter) Info(title string) string {
	return fmt.Sprintf("🧠 **%s**\n\n", title)
}

func (f *ResponseFormatter) Success(message string) string {
	return fmt.Sprintf("✅ **%s**\n", message)
}

func (f *ResponseFormatter) Error(command string, err error) string {
	return fmt.Sprintf("❌ **/%s failed**\n\n**Issue**: %s\n", command, err.Error())
}

func (f *ResponseFormatter) Label(label, value string) string {
	return fmt.Sprintf("**%s**  ›  `%s`\n", label, value)
}

// Score renders a [0, 1] health score with two decimals.
func (f *ResponseFormatter) Score(label string, v float64) string {
	return f.Label(label, fmt.Sprintf("%.2f", v))
}

func (f *ResponseFormatter) Usage(command string) string {
	return fmt.Sprintf("**Usage**:\n```%s```\n", command)
}

func (f *ResponseFormatter) Examples(examples []string) string {
	var sb strings.Builder
	sb.WriteString("**Examples**:\n")
	for _, ex := range examples {
		fmt.Fprintf(&sb, "`%s`\n", ex)
	}
	return sb.String()
}

func (f *ResponseFormatter) List(items []string) string {
	var sb strings.Builder
	for _, item := range items {
		fmt.Fprintf(&sb, "› %s\n", item)
	}
	return sb.String()
}

// Fact renders one remembered fact as a list item.
func (f *ResponseFormatter) Fact(fact core.Fact) string {
	line := fmt.Sprintf("**%s**: %s (%s, %.2f, seen %d×)", fact.FactType, fact.Value, fact.Priority, fact.Confidence, fact.ConfirmationCount)
	if n := len(fact.ContradictionLog); n > 0 {
		line += fmt.Sprintf(", %d contradicted", n)
	}
	return line
}

func (f *ResponseFormatter) Tip(text string) string {
	return fmt.Sprintf("**Tip**: %s\n", text)
}

func (f *ResponseFormatter) Block(block core.MemoryBlock) string {
	title := block.Label
	if block.Immutable {
		title += " (fixed)"
	}
	return fmt.Sprintf("› **%s** %d/%d\n%s\n", title, block.Len(), block.MaxLength, block.Text)
}

func (f *ResponseFormatter) Combine(sections ...string) string {
	return strings.Join(sections, "\n")
}
