package sshserver

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	gliderssh "github.com/gliderlabs/ssh"
	"golang.org/x/term"

	"pkt.systems/pmdesk/core"
	"pkt.systems/pmdesk/internal/command"
	"pkt.systems/pmdesk/schema"
	"pkt.systems/pslog"
)

// console is one interactive SSH workspace: a full-screen frame redrawn on
// input, resize and workspace events, with a line prompt at the bottom.
type console struct {
	service  core.Service
	commands CommandHandler
	userID   schema.UserID
	term     *term.Terminal
	screen   *screen
	styles   styles
	events   <-chan schema.WorkspaceEvent

	width       int
	height      int
	windowStart int
	nav         []schema.NavItem
	notice      frameNotice
}

func newConsole(rw io.ReadWriter, renderer *lipgloss.Renderer, service core.Service, commands CommandHandler, userID schema.UserID, prompt string, events <-chan schema.WorkspaceEvent) *console {
	t := term.NewTerminal(rw, prompt)
	t.AutoCompleteCallback = completeCommand
	return &console{
		service:  service,
		commands: commands,
		userID:   userID,
		term:     t,
		screen:   newScreen(rw, t),
		styles:   newStyles(renderer),
		events:   events,
		width:    defaultWidth,
		height:   defaultHeight,
	}
}

func (c *console) SetSize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	c.width = width
	c.height = height
	_ = c.term.SetSize(width, height)
}

// Run drives the console until the user quits, input ends or ctx is done.
func (c *console) Run(ctx context.Context, winCh <-chan gliderssh.Window) error {
	if ctx == nil {
		return errors.New("missing context")
	}
	log := pslog.Ctx(ctx)
	if nav, err := c.service.ListNav(ctx, schema.WorkspaceRequest{UserID: c.userID}); err == nil {
		c.nav = nav.Items
	} else {
		log.Warn("ssh nav unavailable", "err", err)
	}

	c.screen.EnterAltScreen()
	defer c.screen.ExitAltScreen()
	c.redraw(ctx)

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		for {
			line, err := c.term.ReadLine()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		case win, ok := <-winCh:
			if !ok {
				winCh = nil
				continue
			}
			c.SetSize(win.Width, win.Height)
			c.redraw(ctx)
		case _, ok := <-c.events:
			if !ok {
				c.events = nil
				continue
			}
			c.drainEvents()
			c.redraw(ctx)
		case line := <-lines:
			if c.handleLine(ctx, line) {
				return nil
			}
			c.drainEvents()
			c.redraw(ctx)
		}
	}
}

// handleLine runs one line of input and reports whether the session should end.
func (c *console) handleLine(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	c.notice = frameNotice{}
	switch strings.ToLower(input) {
	case "":
		return false
	case "quit", "exit", "/quit", "/exit":
		return true
	}
	if _, err := strconv.Atoi(input); err == nil {
		input = "/activate " + input
	}
	if c.commands == nil {
		c.notice = frameNotice{lines: []string{"commands are unavailable"}, err: true}
		return false
	}
	res, handled, err := c.commands.Handle(ctx, c.userID, input)
	switch {
	case err != nil:
		c.notice = frameNotice{lines: []string{err.Error()}, err: true}
	case !handled:
		c.notice = frameNotice{lines: []string{"commands start with /, try /help"}}
	default:
		c.notice = frameNotice{lines: res.Lines}
	}
	return false
}

func (c *console) drainEvents() {
	for c.events != nil {
		select {
		case _, ok := <-c.events:
			if !ok {
				c.events = nil
			}
		default:
			return
		}
	}
}

func (c *console) redraw(ctx context.Context) {
	resp, err := c.service.RenderWorkspace(ctx, schema.WorkspaceRequest{UserID: c.userID})
	if err != nil {
		pslog.Ctx(ctx).Warn("ssh render failed", "err", err)
		c.notice = frameNotice{lines: []string{err.Error()}, err: true}
	}
	lines, start := renderFrame(c.styles, resp.View, c.nav, c.width, c.height, c.windowStart, c.notice)
	c.windowStart = start
	if err := c.screen.Render(lines); err != nil {
		pslog.Ctx(ctx).Debug("ssh frame write failed", "err", err)
	}
}

// completeCommand completes a unique slash command prefix on tab.
func completeCommand(line string, pos int, key rune) (string, int, bool) {
	if key != '\t' || pos != len(line) || !strings.HasPrefix(line, "/") || strings.Contains(line, " ") {
		return "", 0, false
	}
	var match string
	for _, name := range command.Names() {
		if !strings.HasPrefix(name, line) {
			continue
		}
		if match != "" {
			return "", 0, false
		}
		match = name
	}
	if match == "" {
		return "", 0, false
	}
	return match + " ", len(match) + 1, true
}
