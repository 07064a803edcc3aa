package cli

import (
	"fmt"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/lipgloss"
)

// Custom help styles - fire theme
var (
	helpTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(FireYellow).
			MarginBottom(1)

	helpDescStyle = lipgloss.NewStyle().
			Foreground(FireOrange).
			Italic(true).
			MarginBottom(1)

	helpSectionStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(FireOrange).
				MarginTop(1)

	helpFlagStyle = lipgloss.NewStyle().
			Foreground(FireYellow).
			Bold(true)

	helpArgStyle = lipgloss.NewStyle().
			Foreground(FireRed).
			Bold(true)

	helpDefaultStyle = lipgloss.NewStyle().
				Foreground(WarmGray).
				Italic(true)
)

// Description is the one-line summary shown under the title
const Description = "Find the onsets in your podcast audio and map where it runs hot."

// StyledHelpPrinter creates a custom help printer with Lipgloss styling
func StyledHelpPrinter(options kong.HelpOptions) kong.HelpPrinter {
	return kong.HelpPrinter(func(options kong.HelpOptions, ctx *kong.Context) error {
		var sb strings.Builder

		node := ctx.Selected()
		if node == nil {
			node = ctx.Model.Node
		}

		// Title and description
		sb.WriteString(helpTitleStyle.Render("Jiveonset 🔥"))
		sb.WriteString("\n")
		desc := Description
		if node != ctx.Model.Node && node.Help != "" {
			desc = node.Help
		}
		sb.WriteString(helpDescStyle.Render(desc))
		sb.WriteString("\n")

		// Usage
		sb.WriteString(helpSectionStyle.Render("Usage:"))
		sb.WriteString("\n  ")
		sb.WriteString(usage(ctx, node))
		sb.WriteString("\n")

		if node == ctx.Model.Node {
			cmds := getCommands(node)
			if len(cmds) > 0 {
				sb.WriteString("\n")
				sb.WriteString(helpSectionStyle.Render("Commands:"))
				sb.WriteString("\n")
				for _, cmd := range cmds {
					sb.WriteString("  ")
					sb.WriteString(helpArgStyle.Render(fmt.Sprintf("%-24s", cmd.name)))
					sb.WriteString(cmd.help)
					sb.WriteString("\n")
				}
			}
		}

		// Arguments section
		args := getArguments(node)
		if len(args) > 0 {
			sb.WriteString("\n")
			sb.WriteString(helpSectionStyle.Render("Arguments:"))
			sb.WriteString("\n")
			for _, arg := range args {
				sb.WriteString("  ")
				sb.WriteString(helpArgStyle.Render(arg.name))
				if arg.help != "" {
					sb.WriteString("  ")
					sb.WriteString(arg.help)
				}
				sb.WriteString("\n")
			}
		}

		// Command flags first, then the global ones
		writeFlags(&sb, "Flags:", getFlags(node.Flags, true))
		if node != ctx.Model.Node {
			writeFlags(&sb, "Global Flags:", getFlags(ctx.Model.Node.Flags, false))
		}

		sb.WriteString("\n")
		fmt.Fprint(ctx.Stdout, sb.String())
		return nil
	})
}

func usage(ctx *kong.Context, node *kong.Node) string {
	if node == ctx.Model.Node {
		return fmt.Sprintf("%s <command> [flags]", ctx.Model.Name)
	}
	parts := []string{ctx.Model.Name, node.Path()}
	for _, arg := range node.Positional {
		parts = append(parts, arg.Summary())
	}
	parts = append(parts, "[flags]")
	return strings.Join(parts, " ")
}

func writeFlags(sb *strings.Builder, title string, flags []flag) {
	if len(flags) == 0 {
		return
	}
	sb.WriteString("\n")
	sb.WriteString(helpSectionStyle.Render(title))
	sb.WriteString("\n")
	for _, flag := range flags {
		sb.WriteString("  ")
		sb.WriteString(helpFlagStyle.Render(flag.flags))
		if flag.help != "" {
			sb.WriteString("  ")
			sb.WriteString(flag.help)
		}
		if flag.defaultVal != "" {
			sb.WriteString(" ")
			sb.WriteString(helpDefaultStyle.Render("(default: " + flag.defaultVal + ")"))
		}
		sb.WriteString("\n")
	}
}

type command struct {
	name string
	help string
}

type argument struct {
	name string
	help string
}

type flag struct {
	flags      string
	help       string
	defaultVal string
}

func getCommands(node *kong.Node) []command {
	var cmds []command
	for _, child := range node.Children {
		if child.Hidden {
			continue
		}
		name := child.Name
		for _, arg := range child.Positional {
			name += " " + arg.Summary()
		}
		cmds = append(cmds, command{name: name, help: child.Help})
	}
	return cmds
}

func getArguments(node *kong.Node) []argument {
	var args []argument
	for _, arg := range node.Positional {
		args = append(args, argument{name: arg.Summary(), help: arg.Help})
	}
	return args
}

func getFlags(nodeFlags []*kong.Flag, withHelp bool) []flag {
	var flags []flag

	if withHelp {
		flags = append(flags, flag{
			flags: "-h, --help",
			help:  "Show context-sensitive help.",
		})
	}

	for _, f := range nodeFlags {
		if f.Name == "help" || f.Hidden {
			continue
		}

		flagStr := ""
		if f.Short != 0 {
			flagStr = fmt.Sprintf("-%c, --%s", f.Short, f.Name)
		} else {
			flagStr = fmt.Sprintf("--%s", f.Name)
		}

		if !f.IsBool() && f.PlaceHolder != "" {
			flagStr += "=" + strings.ToUpper(f.PlaceHolder)
		}

		// Only show default if it's a meaningful value (not empty, not type placeholder)
		defaultVal := ""
		if f.HasDefault && !f.IsBool() {
			val := f.Default
			if val != "" && val != "STRING" && val != "BOOL" {
				defaultVal = val
			}
		}

		flags = append(flags, flag{
			flags:      flagStr,
			help:       f.Help,
			defaultVal: defaultVal,
		})
	}

	return flags
}
