package sshserver

import (
	"fmt"
	"io"
	"math"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"

	"pkt.systems/pmdesk/schema"
)

const (
	defaultWidth  = 80
	defaultHeight = 24
	tabTitleMax   = 14
)

type styles struct {
	bar       lipgloss.Style
	active    lipgloss.Style
	inactive  lipgloss.Style
	pinned    lipgloss.Style
	indicator lipgloss.Style
	nav       lipgloss.Style
	navActive lipgloss.Style
	status    lipgloss.Style
	title     lipgloss.Style
	muted     lipgloss.Style
	errorText lipgloss.Style
	cell      lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	barBG := lipgloss.Color("#1b1d2b")
	return styles{
		bar:       r.NewStyle().Background(barBG).Foreground(lipgloss.Color("#8b8fa8")),
		active:    r.NewStyle().Background(lipgloss.Color("#ff6ac1")).Foreground(barBG).Bold(true),
		inactive:  r.NewStyle().Background(lipgloss.Color("#2c2f44")).Foreground(lipgloss.Color("#c0c3d8")),
		pinned:    r.NewStyle().Background(lipgloss.Color("#3b3f5c")).Foreground(lipgloss.Color("#ffd866")),
		indicator: r.NewStyle().Background(barBG).Foreground(lipgloss.Color("#8b8fa8")).Bold(true),
		nav:       r.NewStyle().Foreground(lipgloss.Color("#8b8fa8")),
		navActive: r.NewStyle().Foreground(lipgloss.Color("#57c7ff")).Bold(true).Underline(true),
		status:    r.NewStyle().Foreground(lipgloss.Color("#5af78e")),
		title:     r.NewStyle().Foreground(lipgloss.Color("#f1f1f0")).Bold(true),
		muted:     r.NewStyle().Foreground(lipgloss.Color("#686868")),
		errorText: r.NewStyle().Foreground(lipgloss.Color("#ff5c57")).Bold(true),
		cell:      r.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#3b3f5c")),
	}
}

// colorProfile maps a client's TERM to the richest profile it advertises.
func colorProfile(termName string) termenv.Profile {
	name := strings.ToLower(strings.TrimSpace(termName))
	switch {
	case name == "" || name == "dumb":
		return termenv.Ascii
	case strings.Contains(name, "truecolor"), strings.Contains(name, "24bit"), strings.Contains(name, "direct"):
		return termenv.TrueColor
	case strings.Contains(name, "256color"):
		return termenv.ANSI256
	default:
		return termenv.ANSI
	}
}

func newRenderer(out io.Writer, termName string) *lipgloss.Renderer {
	r := lipgloss.NewRenderer(out)
	r.SetColorProfile(colorProfile(termName))
	r.SetHasDarkBackground(true)
	return r
}

func truncateName(name string, limit int) string {
	return ansi.Truncate(name, limit, "…")
}

// fill truncates line to width and pads it with the bar background.
func fill(st styles, line string, width int) string {
	line = ansi.Truncate(line, width, "")
	if pad := width - ansi.StringWidth(line); pad > 0 {
		line += st.bar.Render(strings.Repeat(" ", pad))
	}
	return line
}

func tabLabel(tab schema.TabSnapshot) string {
	title := tab.Title
	if title == "" {
		title = string(tab.Type)
	}
	return fmt.Sprintf(" %d %s ", tab.Index+1, truncateName(title, tabTitleMax))
}

func tabStyle(st styles, tab schema.TabSnapshot) lipgloss.Style {
	switch {
	case tab.Active:
		return st.active
	case tab.Pinned:
		return st.pinned
	default:
		return st.inactive
	}
}

// renderTabBar draws pinned tabs in a fixed leading region and windows the
// unpinned tabs into the remaining width. It returns the window start to
// carry into the next frame.
func renderTabBar(st styles, tabs []schema.TabSnapshot, width int, windowStart int) (string, int) {
	if width <= 0 {
		width = defaultWidth
	}
	if len(tabs) == 0 {
		return fill(st, st.inactive.Render(" no tabs "), width), 0
	}
	var pinned, scroll []schema.TabSnapshot
	for _, tab := range tabs {
		if tab.Pinned {
			pinned = append(pinned, tab)
		} else {
			scroll = append(scroll, tab)
		}
	}

	var b strings.Builder
	for _, tab := range pinned {
		b.WriteString(tabStyle(st, tab).Render(tabLabel(tab)))
	}
	if len(pinned) > 0 && len(scroll) > 0 {
		b.WriteString(st.indicator.Render("|"))
	}
	avail := width - ansi.StringWidth(b.String())
	if len(scroll) == 0 || avail <= 0 {
		return fill(st, b.String(), width), 0
	}

	labels := make([]string, 0, len(scroll))
	widths := make([]int, 0, len(scroll))
	activeIndex := -1
	totalWidth := 0
	for i, tab := range scroll {
		label := tabLabel(tab)
		labels = append(labels, label)
		widths = append(widths, ansi.StringWidth(label))
		totalWidth += widths[i]
		if tab.Active {
			activeIndex = i
		}
	}
	if totalWidth <= avail {
		for i, tab := range scroll {
			b.WriteString(tabStyle(st, tab).Render(labels[i]))
		}
		return fill(st, b.String(), width), 0
	}

	window := tabWindowFromStart(widths, windowStart, avail)
	if activeIndex >= 0 {
		if activeIndex < window.start {
			window = tabWindowActiveLeft(widths, activeIndex, avail)
		} else if activeIndex >= window.end {
			window = tabWindowActiveRight(widths, activeIndex, avail)
		}
	}
	if window.leftHidden {
		b.WriteString(st.indicator.Render("<"))
	}
	for i := window.start; i < window.end; i++ {
		b.WriteString(tabStyle(st, scroll[i]).Render(labels[i]))
	}
	if window.rightHidden {
		return fill(st, b.String(), width-1) + st.indicator.Render(">"), window.start
	}
	return fill(st, b.String(), width), window.start
}

type tabWindow struct {
	start       int
	end         int
	leftHidden  bool
	rightHidden bool
}

func tabWindowFromStart(widths []int, start int, width int) tabWindow {
	n := len(widths)
	if n == 0 {
		return tabWindow{}
	}
	start = max(0, min(start, n-1))
	return settleForward(widths, start, width)
}

func tabWindowActiveLeft(widths []int, activeIndex int, width int) tabWindow {
	n := len(widths)
	if n == 0 {
		return tabWindow{}
	}
	return settleForward(widths, max(0, min(activeIndex, n-1)), width)
}

// settleForward fits tabs from start, re-fitting until the room taken by the
// scroll indicators stops changing.
func settleForward(widths []int, start int, width int) tabWindow {
	n := len(widths)
	leftHidden := start > 0
	rightHidden := false
	end := start + 1
	for i := 0; i < 3; i++ {
		end = fitForward(widths, start, indicatorRoom(width, leftHidden, rightHidden))
		rightHidden = end < n
	}
	return tabWindow{start: start, end: end, leftHidden: leftHidden, rightHidden: rightHidden}
}

func tabWindowActiveRight(widths []int, activeIndex int, width int) tabWindow {
	n := len(widths)
	if n == 0 {
		return tabWindow{}
	}
	end := max(0, min(activeIndex, n-1)) + 1
	rightHidden := end < n
	leftHidden := false
	start := end - 1
	for i := 0; i < 3; i++ {
		start = fitBackward(widths, end, indicatorRoom(width, leftHidden, rightHidden))
		leftHidden = start > 0
	}
	return tabWindow{start: start, end: end, leftHidden: leftHidden, rightHidden: rightHidden}
}

func indicatorRoom(width int, leftHidden, rightHidden bool) int {
	if leftHidden {
		width--
	}
	if rightHidden {
		width--
	}
	return max(width, 1)
}

func fitForward(widths []int, start int, avail int) int {
	n := len(widths)
	if start >= n {
		return n
	}
	sum := 0
	end := start
	for i := start; i < n; i++ {
		if sum+widths[i] > avail {
			break
		}
		sum += widths[i]
		end = i + 1
	}
	return max(end, start+1)
}

func fitBackward(widths []int, end int, avail int) int {
	if end < 1 {
		return 0
	}
	sum := 0
	start := end
	for i := end - 1; i >= 0; i-- {
		if sum+widths[i] > avail {
			break
		}
		sum += widths[i]
		start = i
	}
	return min(start, end-1)
}

func renderNav(st styles, items []schema.NavItem, active int, width int) string {
	var b strings.Builder
	for _, item := range items {
		label := fmt.Sprintf("%d %s", item.Index, item.Label)
		if item.Index == active {
			b.WriteString(st.navActive.Render(label))
		} else {
			b.WriteString(st.nav.Render(label))
		}
		b.WriteString("  ")
	}
	return ansi.Truncate(b.String(), width, "…")
}

func renderStatus(st styles, snapshot schema.WorkspaceSnapshot, width int) string {
	status := "tab mode"
	if snapshot.GridMode {
		status = fmt.Sprintf("grid mode  bp %s  %d cells", snapshot.Grid.CurrentBreakpoint, len(snapshot.Grid.Cells))
	}
	return ansi.Truncate(st.status.Render(status), width, "…")
}

func renderViewContent(st styles, content *schema.ViewContent, width int) []string {
	if content == nil {
		return []string{st.muted.Render("no active tab")}
	}
	lines := []string{
		ansi.Truncate(st.title.Render(content.Title)+" "+st.muted.Render("("+string(content.Density)+")"), width, "…"),
	}
	if content.Error != "" {
		lines = append(lines, ansi.Truncate(st.errorText.Render("error: "+content.Error), width, "…"))
	}
	for _, line := range content.Lines {
		lines = append(lines, ansi.Truncate(line, width, "…"))
	}
	if n := len(content.Links); n > 0 {
		lines = append(lines, ansi.Truncate(st.muted.Render(fmt.Sprintf("/follow 1-%d opens a row", n)), width, "…"))
	}
	return lines
}

// cellLineBudget scales a density's base line count by the cell's zoom.
func cellLineBudget(density schema.Density, zoom float64) int {
	base := 1
	switch density {
	case schema.DensityMedium:
		base = 3
	case schema.DensityFull:
		base = 6
	}
	if zoom <= 0 {
		zoom = 1
	}
	return max(1, int(math.Round(float64(base)*zoom)))
}

func renderCell(st styles, rc schema.RenderedCell, number int, width int) string {
	inner := max(width-2, 1)
	title := rc.Content.Title
	if title == "" {
		title = rc.Cell.Title
	}
	lines := []string{
		ansi.Truncate(st.title.Render(fmt.Sprintf("%d %s", number, title)), inner, "…"),
		ansi.Truncate(st.muted.Render(fmt.Sprintf("%s %.1fx", rc.Content.Density, rc.Zoom)), inner, "…"),
	}
	if rc.Content.Error != "" {
		lines = append(lines, ansi.Truncate(st.errorText.Render(rc.Content.Error), inner, "…"))
	}
	budget := cellLineBudget(rc.Content.Density, rc.Zoom)
	for i, line := range rc.Content.Lines {
		if i == budget {
			lines = append(lines, st.muted.Render("…"))
			break
		}
		lines = append(lines, ansi.Truncate(line, inner, "…"))
	}
	return st.cell.Width(inner).Render(strings.Join(lines, "\n"))
}

// gridRows groups cells sharing a y coordinate, left to right.
func gridRows(cells []schema.RenderedCell) [][]schema.RenderedCell {
	sorted := slices.Clone(cells)
	slices.SortStableFunc(sorted, func(a, b schema.RenderedCell) int {
		if a.Cell.Y != b.Cell.Y {
			return a.Cell.Y - b.Cell.Y
		}
		return a.Cell.X - b.Cell.X
	})
	var rows [][]schema.RenderedCell
	for i, rc := range sorted {
		if i == 0 || rc.Cell.Y != sorted[i-1].Cell.Y {
			rows = append(rows, nil)
		}
		rows[len(rows)-1] = append(rows[len(rows)-1], rc)
	}
	return rows
}

// renderGrid splits each row's width between its cells in proportion to
// their grid widths.
func renderGrid(st styles, cells []schema.RenderedCell, width int) []string {
	if len(cells) == 0 {
		return []string{st.muted.Render("grid is empty: /drag <nav> or /cell add <type>")}
	}
	numbers := make(map[schema.CellID]int, len(cells))
	for i, rc := range cells {
		numbers[rc.Cell.ID] = i + 1
	}
	var out []string
	for _, row := range gridRows(cells) {
		units := 0
		for _, rc := range row {
			units += max(rc.Cell.W, 1)
		}
		boxes := make([]string, 0, len(row))
		remaining := width
		for i, rc := range row {
			w := width * max(rc.Cell.W, 1) / units
			if i == len(row)-1 {
				w = remaining
			}
			remaining -= w
			boxes = append(boxes, renderCell(st, rc, numbers[rc.Cell.ID], w))
		}
		out = append(out, strings.Split(lipgloss.JoinHorizontal(lipgloss.Top, boxes...), "\n")...)
	}
	return out
}

type frameNotice struct {
	lines []string
	err   bool
}

// renderFrame lays out one screen: tab bar, nav, status, body and notices.
// The last row is left for the prompt.
func renderFrame(st styles, view schema.WorkspaceView, nav []schema.NavItem, width, height, windowStart int, notice frameNotice) ([]string, int) {
	if width <= 0 {
		width = defaultWidth
	}
	if height <= 0 {
		height = defaultHeight
	}
	tabBar, windowStart := renderTabBar(st, view.Snapshot.Tabs, width, windowStart)
	lines := []string{
		tabBar,
		renderNav(st, nav, view.Snapshot.ActiveNavIndex, width),
		renderStatus(st, view.Snapshot, width),
	}
	var body []string
	if view.Snapshot.GridMode {
		body = renderGrid(st, view.Cells, width)
	} else {
		body = renderViewContent(st, view.ActiveTab, width)
	}
	noticeStyle := st.muted
	if notice.err {
		noticeStyle = st.errorText
	}
	noticeLines := make([]string, 0, len(notice.lines))
	for _, line := range notice.lines {
		noticeLines = append(noticeLines, ansi.Truncate(noticeStyle.Render(line), width, "…"))
	}
	if limit := max(height-len(lines)-1, 0); len(noticeLines) > limit {
		noticeLines = noticeLines[:limit]
	}
	rows := max(height-len(lines)-len(noticeLines)-1, 0)
	if len(body) > rows {
		body = body[:rows]
		if rows > 0 {
			body[rows-1] = st.muted.Render("…")
		}
	}
	lines = append(lines, body...)
	for len(lines) < height-len(noticeLines)-1 {
		lines = append(lines, "")
	}
	return append(lines, noticeLines...), windowStart
}
