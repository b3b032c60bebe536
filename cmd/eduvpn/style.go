package main

import (
	"bytes"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"
)

// Styles
var (
	primaryColor   = lipgloss.Color("#F39200")
	secondaryColor = lipgloss.Color("#10B981")
	errorColor     = lipgloss.Color("#EF4444")
	warningColor   = lipgloss.Color("#F59E0B")
	infoColor      = lipgloss.Color("#3B82F6")
	dimColor       = lipgloss.Color("#6B7280")

	logoStyle    = lipgloss.NewStyle().Foreground(primaryColor).Bold(true)
	promptStyle  = lipgloss.NewStyle().Foreground(primaryColor).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(secondaryColor)
	warningStyle = lipgloss.NewStyle().Foreground(warningColor)
	infoStyle    = lipgloss.NewStyle().Foreground(infoColor)
	dimStyle     = lipgloss.NewStyle().Foreground(dimColor)
	cmdStyle     = lipgloss.NewStyle().Foreground(warningColor)
	titleStyle   = lipgloss.NewStyle().Foreground(primaryColor).Bold(true).Underline(true)
	stateStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A78BFA"))
)

// Syntax highlighter
var (
	chromaStyle *chroma.Style
	formatter   chroma.Formatter
)

func initSyntaxHighlighter() {
	chromaStyle = styles.Get("dracula")
	if chromaStyle == nil {
		chromaStyle = styles.Fallback
	}
	formatter = formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}
}

// lexerFor picks a lexer for an engine payload. WireGuard configs are INI
// files; OpenVPN configs have no dedicated lexer and read well as bash.
func lexerFor(kind string) chroma.Lexer {
	var lexer chroma.Lexer
	switch strings.ToLower(kind) {
	case "wireguard":
		lexer = lexers.Get("ini")
	case "openvpn":
		lexer = lexers.Get("bash")
	case "json", "yaml":
		lexer = lexers.Get(kind)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	return chroma.Coalesce(lexer)
}

func highlight(code, kind string) string {
	if formatter == nil || !colorEnabled {
		return code
	}
	var buf bytes.Buffer
	iterator, err := lexerFor(kind).Tokenise(nil, code)
	if err != nil {
		return code
	}
	if err := formatter.Format(&buf, chromaStyle, iterator); err != nil {
		return code
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
