package codegen

import (
	"fmt"
	"strings"
)

const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 4000
)

// SystemInstruction is sent as the system message on every generation.
var SystemInstruction = buildSystemInstruction()

func buildSystemInstruction() string {
	rules := []string{
		"Always create a complete HTML document with DOCTYPE, head, and body",
		"Include modern CSS styling using Tailwind CSS via CDN",
		"Make it responsive and visually appealing with modern design",
		"Include realistic content relevant to the user's request",
		"Use semantic HTML elements",
		"Add interactive elements where appropriate (buttons, forms, hover effects)",
		"Include proper meta tags, title, and favicon",
		"Add smooth animations and transitions",
		"Use modern color schemes and typography",
		"Make sure the code is production-ready and functional",
		"Include Tailwind CSS CDN link in the head",
	}

	var sb strings.Builder
	sb.WriteString("You are an expert web developer. Generate complete, functional HTML websites based on user descriptions.\n\n")
	sb.WriteString("Requirements:\n")
	for _, r := range rules {
		sb.WriteString(fmt.Sprintf("- %s\n", r))
	}
	sb.WriteString("\nReturn ONLY the HTML code, no explanations or markdown.")
	return sb.String()
}

// extractCode unwraps the model output and rejects replies that carry no
// markup once fences and whitespace are gone.
func extractCode(provider, raw string) (string, error) {
	code := stripFences(raw)
	if strings.TrimSpace(code) == "" {
		return "", malformed(provider, "empty content")
	}
	return code, nil
}

// stripFences removes one markdown fence pair wrapping the whole output.
// Text that is not fenced is returned unchanged.
func stripFences(code string) string {
	trimmed := strings.TrimSpace(code)
	if !isFence(firstLine(trimmed)) {
		return code
	}
	lines := strings.Split(trimmed, "\n")
	lines = lines[1:]
	if len(lines) > 0 && isFence(strings.TrimSpace(lines[len(lines)-1])) {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

func isFence(line string) bool {
	return strings.HasPrefix(line, "```") || strings.HasPrefix(line, "~~~")
}
