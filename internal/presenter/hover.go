package presenter

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"github.com/harrison/specrunner/internal/models"
)

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`,
	"`", "\\`",
	"*", `\*`,
	"_", `\_`,
	"[", `\[`,
	"]", `\]`,
	"<", `\<`,
	"#", `\#`,
)

func escape(s string) string {
	return markdownEscaper.Replace(s)
}

func staleSuffix(stale bool) string {
	if stale {
		return " (stale)"
	}
	return ""
}

func runPendingHover() string {
	return "Tests are running..."
}

func passedHover(result *models.LineResult, stale bool) string {
	hover := "**Passed" + staleSuffix(stale) + "**"
	if result.DurationLabel != "" {
		hover += " in " + result.DurationLabel
	}
	return hover
}

func pendingHover(result *models.LineResult, stale bool) string {
	hover := "**Pending" + staleSuffix(stale) + "**"
	if result.PendingMessage != "" {
		hover += ": " + escape(result.PendingMessage)
	}
	return hover
}

func failedHover(result *models.LineResult, stale bool) string {
	hover := "**Failed" + staleSuffix(stale) + "**"
	if result.Exception != nil && result.Exception.Message != "" {
		hover += ": " + escape(firstLine(result.Exception.Message))
	}
	return hover
}

func failedLineHover(exception *models.ExceptionInfo, stale bool) string {
	var b strings.Builder
	b.WriteString("**Test failed" + staleSuffix(stale) + "**")
	if exception.Type != "" {
		b.WriteString(": `" + strings.ReplaceAll(exception.Type, "`", "") + "`")
	}
	if exception.Message != "" {
		b.WriteString("\n\n```\n")
		b.WriteString(strings.TrimRight(exception.Message, "\n"))
		b.WriteString("\n```")
	}
	return b.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// PlainText flattens markdown hover text into plain lines for terminals.
func PlainText(markdown string) string {
	source := []byte(markdown)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var blocks []string
	var inline bytes.Buffer
	inCode := false

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Paragraph, *ast.Heading:
			if !entering {
				blocks = append(blocks, inline.String())
				inline.Reset()
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if entering {
				blocks = append(blocks, strings.TrimRight(blockLines(node, source), "\n"))
			}
			return ast.WalkSkipChildren, nil
		case *ast.CodeSpan:
			inCode = entering
		case *ast.Text:
			if entering {
				value := node.Segment.Value(source)
				if !inCode {
					value = util.UnescapePunctuations(value)
				}
				inline.Write(value)
				if node.SoftLineBreak() || node.HardLineBreak() {
					inline.WriteByte(' ')
				}
			}
		case *ast.String:
			if entering {
				inline.Write(node.Value)
			}
		}
		return ast.WalkContinue, nil
	})

	return strings.Join(blocks, "\n")
}

func blockLines(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		segment := lines.At(i)
		buf.Write(segment.Value(source))
	}
	return buf.String()
}
