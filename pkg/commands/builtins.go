package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/harun/orca/internal/observability"
	"github.com/harun/orca/pkg/browser"
	"github.com/harun/orca/pkg/conversation"
	"github.com/harun/orca/pkg/coretools"
	"github.com/harun/orca/pkg/sandbox"
	"github.com/harun/orca/pkg/session"
	"github.com/harun/orca/pkg/toolclient"
)

// maxSystemText caps page text added to the conversation
const maxSystemText = 20000

// Builtins returns the command table orca ships with
func Builtins() []Descriptor {
	return []Descriptor{
		{Name: "help", Summary: "list commands", MaxArgs: 0, Handler: Action(cmdHelp)},
		{Name: "mode", Usage: "<primary|secondary|auto>", Summary: "choose which provider answers", MinArgs: 1, MaxArgs: 1, Handler: Action(cmdMode)},
		{Name: "providers", Summary: "show provider availability", MaxArgs: 0, Handler: Action(cmdProviders)},
		{Name: "task", Usage: "<goal...>", Summary: "run an autonomous task", MinArgs: 1, MaxArgs: -1, Handler: Action(cmdTask)},
		{Name: "tool-add", Usage: "<label> <url>", Summary: "register a remote tool server", MinArgs: 2, MaxArgs: 2, Handler: Action(cmdToolAdd)},
		{Name: "tools", Usage: "[label]", Summary: "discover tools on one or all servers", MaxArgs: 1, Loop: true, Handler: Action(cmdTools)},
		{Name: "call", Usage: "<label> <tool> [args...]", Summary: "invoke a remote tool", MinArgs: 2, MaxArgs: -1, Loop: true, Handler: Action(cmdCall)},
		{Name: "attach", Usage: "<path>", Summary: "attach an image to the next message", MinArgs: 1, MaxArgs: 1, Handler: Action(cmdAttach)},
		{Name: "history", Summary: "summarize the conversation", MaxArgs: 0, Handler: Action(cmdHistory)},
		{Name: "clear", Summary: "clear the conversation", MaxArgs: 0, Handler: Confirmed(cmdClear)},
		{Name: "ls", Usage: "[dir]", Summary: "list a directory", MaxArgs: 1, Loop: true, Handler: Action(cmdList)},
		{Name: "read", Usage: "<path>", Summary: "read a file", MinArgs: 1, MaxArgs: 1, Loop: true, Handler: Action(cmdRead)},
		{Name: "write", Usage: "<path> <text...>", Summary: "write a file", MinArgs: 2, MaxArgs: -1, Loop: true, Handler: Action(cmdWrite)},
		{Name: "append", Usage: "<path> <text...>", Summary: "append to a file", MinArgs: 2, MaxArgs: -1, Loop: true, Handler: Action(cmdAppend)},
		{Name: "delete", Usage: "<path>", Summary: "delete a file", MinArgs: 1, MaxArgs: 1, Handler: Confirmed(cmdDelete)},
		{Name: "exec", Usage: "<command...>", Summary: "run a shell command", MinArgs: 1, MaxArgs: -1, Loop: true, Handler: Action(cmdExec)},
		{Name: "browse", Summary: "launch the browser", MaxArgs: 0, Loop: true, Handler: Action(cmdBrowse)},
		{Name: "navigate", Usage: "<url>", Summary: "open a url", MinArgs: 1, MaxArgs: 1, Loop: true, Handler: Action(cmdNavigate)},
		{Name: "click", Usage: "<selector>", Summary: "click an element", MinArgs: 1, MaxArgs: 1, Loop: true, Handler: Action(cmdClick)},
		{Name: "type", Usage: "<selector> <text...>", Summary: "type into an element", MinArgs: 2, MaxArgs: -1, Loop: true, Handler: Action(cmdType)},
		{Name: "extract", Usage: "[selector]", Summary: "extract page text", MaxArgs: 1, Loop: true, Handler: Action(cmdExtract)},
		{Name: "screenshot", Usage: "[path]", Summary: "save a screenshot", MaxArgs: 1, Loop: true, Handler: Action(cmdScreenshot)},
		{Name: "search", Usage: "<query...>", Summary: "search the web", MinArgs: 1, MaxArgs: -1, Loop: true, Handler: Action(cmdSearch)},
		{Name: "close-browser", Summary: "close the browser", MaxArgs: 0, Loop: true, Handler: Action(cmdCloseBrowser)},
		{Name: "exit", Summary: "leave orca", MaxArgs: 0, Handler: Action(cmdExit)},
	}
}

// NewBuiltinRegistry builds the registry from Builtins
func NewBuiltinRegistry() (*Registry, error) {
	return NewRegistry(Builtins()...)
}

func cmdHelp(ctx context.Context, env *Env, args []string) error {
	if env.Commands == nil {
		return fmt.Errorf("command table unavailable")
	}
	descs := env.Commands.Descriptors()

	width := 0
	for _, d := range descs {
		if n := len(d.Syntax(env.Settings.Prefix)); n > width {
			width = n
		}
	}

	var b strings.Builder
	b.WriteString("Commands:")
	for _, d := range descs {
		fmt.Fprintf(&b, "\n  %-*s  %s", width, d.Syntax(env.Settings.Prefix), d.Summary)
	}
	b.WriteString("\nAnything else is sent to the model.")
	env.Out().Output(b.String())
	return nil
}

func cmdMode(ctx context.Context, env *Env, args []string) error {
	mode, err := session.ParseMode(args[0])
	if err != nil {
		return err
	}
	prev, err := env.Session.SetMode(mode)
	if err != nil {
		return err
	}
	observability.RecordModeChange(ctx, string(prev), string(mode))
	env.Out().Info(fmt.Sprintf("Provider mode: %s", mode))
	return nil
}

func cmdProviders(ctx context.Context, env *Env, args []string) error {
	if env.Gateway == nil {
		return fmt.Errorf("no provider gateway configured")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Mode: %s", env.Session.Mode())
	for i, p := range env.Gateway.Providers() {
		role := "primary"
		if i == 1 {
			role = "secondary"
		}
		status := "unavailable (no credential)"
		if p.Available {
			status = "available"
			if src := env.Settings.CredentialSources[p.Name]; src != "" {
				status += " via " + src
			}
		}
		fmt.Fprintf(&b, "\n  %-9s %s (%s): %s", role, p.Name, p.Model, status)
	}
	env.Out().Output(b.String())
	return nil
}

func cmdTask(ctx context.Context, env *Env, args []string) error {
	if env.Tasks == nil {
		return fmt.Errorf("agent loop is not configured")
	}
	summary, err := env.Tasks.RunTask(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	env.Out().Info(summary)
	return nil
}

func cmdToolAdd(ctx context.Context, env *Env, args []string) error {
	if err := env.Session.Tools.Add(args[0], args[1]); err != nil {
		return err
	}
	env.Out().Info(fmt.Sprintf("Registered %s at %s. Run %stools %s to discover its catalog.", args[0], args[1], env.Settings.Prefix, args[0]))
	return nil
}

func cmdTools(ctx context.Context, env *Env, args []string) error {
	if env.Tools == nil {
		return fmt.Errorf("tool client is not configured")
	}
	reg := env.Session.Tools
	conv := env.Session.Conversation

	if len(args) == 1 {
		tools, err := env.Tools.Discover(ctx, reg, conv, args[0])
		if err != nil {
			return err
		}
		env.Out().Output(toolclient.FormatCatalog(args[0], tools))
		return nil
	}

	if reg.Len() == 0 {
		env.Out().Info(fmt.Sprintf("No tool servers registered. Use %stool-add <label> <url>.", env.Settings.Prefix))
		return nil
	}
	for _, res := range env.Tools.DiscoverAll(ctx, reg, conv) {
		if res.Err != nil {
			env.Out().Error(fmt.Sprintf("tools %s: %v", res.Label, res.Err))
			continue
		}
		env.Out().Output(toolclient.FormatCatalog(res.Label, res.Tools))
	}
	return nil
}

func cmdCall(ctx context.Context, env *Env, args []string) error {
	if env.Tools == nil {
		return fmt.Errorf("tool client is not configured")
	}
	out, err := env.Tools.Invoke(ctx, env.Session.Tools, env.Session.Conversation, args[0], args[1], args[2:])
	if err != nil {
		return err
	}
	env.Out().Output(out)
	return nil
}

func cmdAttach(ctx context.Context, env *Env, args []string) error {
	path := args[0]
	if env.Files != nil {
		resolved, err := env.Files.Resolve(path)
		if err != nil {
			return err
		}
		path = resolved
	}

	a, err := session.LoadAttachment(path, env.Settings.AttachMaxBytes)
	if err != nil {
		return err
	}
	if prev := env.Session.PendingAttachment(); prev != nil {
		env.Out().Info(fmt.Sprintf("Replacing pending attachment %s", prev.Path))
	}
	env.Session.SetAttachment(a)
	env.Out().Info(fmt.Sprintf("Attached %s to the next message.", a.Describe()))
	return nil
}

func cmdHistory(ctx context.Context, env *Env, args []string) error {
	conv := env.Session.Conversation
	turns := conv.Turns()

	var b strings.Builder
	fmt.Fprintf(&b, "%d turns (user %d, model %d, system %d)",
		len(turns),
		conv.Count(conversation.RoleUser),
		conv.Count(conversation.RoleModel),
		conv.Count(conversation.RoleSystem),
	)
	for i, t := range turns {
		fmt.Fprintf(&b, "\n%4d %-6s %s", i+1, t.Role, preview(t.Content, 72))
	}
	env.Out().Output(b.String())
	return nil
}

func cmdClear(ctx context.Context, env *Env, args []string) error {
	if err := env.Session.Conversation.Clear(); err != nil {
		return err
	}
	env.Out().Info("Conversation cleared.")
	return nil
}

func cmdList(ctx context.Context, env *Env, args []string) error {
	files, err := filesOf(env)
	if err != nil {
		return err
	}
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}

	entries, err := files.List(dir)
	if err != nil {
		return err
	}
	listing := coretools.FormatEntries(entries)
	if err := env.Session.Conversation.AppendSystem(ctx, fmt.Sprintf("Contents of %s:\n%s", dir, listing)); err != nil {
		return err
	}
	env.Out().Output(listing)
	return nil
}

func cmdRead(ctx context.Context, env *Env, args []string) error {
	files, err := filesOf(env)
	if err != nil {
		return err
	}

	content, truncated, err := files.Read(args[0])
	if err != nil {
		return err
	}
	if truncated {
		content += "\n[truncated]"
	}
	if err := env.Session.Conversation.AppendSystem(ctx, fmt.Sprintf("Content of %s:\n%s", args[0], content)); err != nil {
		return err
	}
	env.Out().Output(content)
	return nil
}

func cmdWrite(ctx context.Context, env *Env, args []string) error {
	return writeFile(ctx, env, args, "Wrote", (*coretools.Files).Write)
}

func cmdAppend(ctx context.Context, env *Env, args []string) error {
	return writeFile(ctx, env, args, "Appended", (*coretools.Files).Append)
}

func writeFile(ctx context.Context, env *Env, args []string, verb string, op func(*coretools.Files, string, string) (string, error)) error {
	files, err := filesOf(env)
	if err != nil {
		return err
	}

	content := strings.Join(args[1:], " ")
	if _, err := op(files, args[0], content); err != nil {
		return err
	}
	msg := fmt.Sprintf("%s %d bytes to %s", verb, len(content), args[0])
	if err := env.Session.Conversation.AppendSystem(ctx, msg); err != nil {
		return err
	}
	env.Out().Info(msg)
	return nil
}

func cmdDelete(ctx context.Context, env *Env, args []string) error {
	files, err := filesOf(env)
	if err != nil {
		return err
	}
	target, err := files.Delete(args[0])
	if err != nil {
		return err
	}
	env.Out().Info(fmt.Sprintf("Deleted %s", target))
	return nil
}

func cmdExec(ctx context.Context, env *Env, args []string) error {
	if env.Shell == nil {
		return fmt.Errorf("shell capability is not configured")
	}
	command := strings.Join(args, " ")

	result, err := env.Shell.Execute(ctx, sandbox.ExecuteRequest{
		Command: command,
		Timeout: env.Settings.ShellTimeout,
	})
	if err != nil {
		return err
	}
	out := result.Format(command)
	if err := env.Session.Conversation.AppendSystem(ctx, out); err != nil {
		return err
	}
	env.Out().Output(out)
	return nil
}

func cmdBrowse(ctx context.Context, env *Env, args []string) error {
	b, err := env.browser()
	if err != nil {
		return err
	}
	if err := b.Launch(ctx); err != nil {
		return err
	}
	env.Out().Info("Browser ready.")
	return nil
}

func cmdNavigate(ctx context.Context, env *Env, args []string) error {
	b, err := env.browser()
	if err != nil {
		return err
	}
	info, err := b.Navigate(ctx, args[0])
	if err != nil {
		return err
	}
	msg := fmt.Sprintf("Navigated to %s (title: %q)", info.URL, info.Title)
	if err := env.Session.Conversation.AppendSystem(ctx, msg); err != nil {
		return err
	}
	env.Out().Info(msg)
	return nil
}

func cmdClick(ctx context.Context, env *Env, args []string) error {
	b, err := env.browser()
	if err != nil {
		return err
	}
	if err := b.Click(ctx, args[0]); err != nil {
		return err
	}
	msg := fmt.Sprintf("Clicked %s", args[0])
	if err := env.Session.Conversation.AppendSystem(ctx, msg); err != nil {
		return err
	}
	env.Out().Info(msg)
	return nil
}

func cmdType(ctx context.Context, env *Env, args []string) error {
	b, err := env.browser()
	if err != nil {
		return err
	}
	text := strings.Join(args[1:], " ")
	if err := b.Type(ctx, args[0], text); err != nil {
		return err
	}
	msg := fmt.Sprintf("Typed %d characters into %s", len(text), args[0])
	if err := env.Session.Conversation.AppendSystem(ctx, msg); err != nil {
		return err
	}
	env.Out().Info(msg)
	return nil
}

func cmdExtract(ctx context.Context, env *Env, args []string) error {
	b, err := env.browser()
	if err != nil {
		return err
	}
	selector := ""
	if len(args) == 1 {
		selector = args[0]
	}

	text, err := b.ExtractText(ctx, selector)
	if err != nil {
		return err
	}
	text = clip(text, maxSystemText)

	label := "page"
	if selector != "" {
		label = selector
	}
	if err := env.Session.Conversation.AppendSystem(ctx, fmt.Sprintf("Text of %s:\n%s", label, text)); err != nil {
		return err
	}
	env.Out().Output(text)
	return nil
}

func cmdScreenshot(ctx context.Context, env *Env, args []string) error {
	b, err := env.browser()
	if err != nil {
		return err
	}
	files, err := filesOf(env)
	if err != nil {
		return err
	}

	path := filepath.Join(env.Settings.ScreenshotDir, fmt.Sprintf("screenshot-%s.png", time.Now().Format("20060102-150405")))
	if len(args) == 1 {
		path = args[0]
	}

	data, err := b.Screenshot(ctx)
	if err != nil {
		return err
	}
	target, err := files.Write(path, string(data))
	if err != nil {
		return err
	}
	msg := fmt.Sprintf("Screenshot saved to %s", target)
	if err := env.Session.Conversation.AppendSystem(ctx, msg); err != nil {
		return err
	}
	env.Out().Info(msg)
	return nil
}

// cmdSearch launches, navigates and extracts, each step finishing before
// the next starts.
func cmdSearch(ctx context.Context, env *Env, args []string) error {
	b, err := env.browser()
	if err != nil {
		return err
	}
	query := strings.Join(args, " ")

	if !b.Running() {
		if err := b.Launch(ctx); err != nil {
			return err
		}
	}
	if _, err := b.Navigate(ctx, browser.SearchURL(env.Settings.SearchEngine, query)); err != nil {
		return err
	}
	text, err := b.ExtractText(ctx, "")
	if err != nil {
		return err
	}
	text = clip(text, maxSystemText)

	if err := env.Session.Conversation.AppendSystem(ctx, fmt.Sprintf("Search results for %q:\n%s", query, text)); err != nil {
		return err
	}
	env.Out().Output(text)
	return nil
}

func cmdCloseBrowser(ctx context.Context, env *Env, args []string) error {
	b, err := env.browser()
	if err != nil {
		return err
	}
	if err := b.Close(); err != nil {
		return err
	}
	env.Out().Info("Browser closed.")
	return nil
}

func cmdExit(ctx context.Context, env *Env, args []string) error {
	return ErrExit
}

func filesOf(env *Env) (*coretools.Files, error) {
	if env.Files == nil {
		return nil, fmt.Errorf("file capability is not configured")
	}
	return env.Files, nil
}

func clip(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:runeBoundary(s, limit)] + "\n[truncated]"
}

func preview(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= limit {
		return s
	}
	return s[:runeBoundary(s, limit-3)] + "..."
}

// runeBoundary backs n off to the start of the rune containing s[n]
func runeBoundary(s string, n int) int {
	if n <= 0 {
		return 0
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return n
}
