package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/gartstein/eagle/internal/taskmgr/models"
	"github.com/gartstein/eagle/internal/taskmgr/notify"
)

const (
	colorAccent  = "#7C3AED"
	colorMuted   = "#6D7383"
	colorBorder  = "#3A3F55"
	colorError   = "#EF4444"
	colorSuccess = "#22C55E"
	colorWarning = "#F59E0B"

	dateLayout = "2006-01-02"
)

// Renderer writes styled output. Colors are dropped when out is not a
// terminal.
type Renderer struct {
	out     io.Writer
	header  lipgloss.Style
	muted   lipgloss.Style
	success lipgloss.Style
	failure lipgloss.Style
	border  lipgloss.Style
	box     lipgloss.Style
	status  map[models.Status]lipgloss.Style
}

func NewRenderer(out io.Writer) *Renderer {
	r := lipgloss.NewRenderer(out)
	return &Renderer{
		out:     out,
		header:  r.NewStyle().Bold(true).Foreground(lipgloss.Color(colorAccent)).Padding(0, 1),
		muted:   r.NewStyle().Foreground(lipgloss.Color(colorMuted)),
		success: r.NewStyle().Foreground(lipgloss.Color(colorSuccess)),
		failure: r.NewStyle().Bold(true).Foreground(lipgloss.Color(colorError)),
		border:  r.NewStyle().Foreground(lipgloss.Color(colorBorder)),
		box: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(colorAccent)).
			Padding(0, 1),
		status: map[models.Status]lipgloss.Style{
			models.StatusPending:    r.NewStyle().Foreground(lipgloss.Color(colorWarning)),
			models.StatusInProgress: r.NewStyle().Foreground(lipgloss.Color(colorAccent)),
			models.StatusCompleted:  r.NewStyle().Foreground(lipgloss.Color(colorSuccess)),
		},
	}
}

func (r *Renderer) Success(format string, args ...interface{}) {
	fmt.Fprintln(r.out, r.success.Render(fmt.Sprintf(format, args...)))
}

func (r *Renderer) Info(format string, args ...interface{}) {
	fmt.Fprintln(r.out, r.muted.Render(fmt.Sprintf(format, args...)))
}

func (r *Renderer) Error(err error) {
	fmt.Fprintln(r.out, r.failure.Render("Error: "+err.Error()))
}

func (r *Renderer) table(headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(r.border).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return r.header
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	fmt.Fprintln(r.out, t.Render())
}

func (r *Renderer) Companies(companies []models.Company) {
	rows := make([][]string, 0, len(companies))
	for _, c := range companies {
		rows = append(rows, []string{strconv.FormatInt(c.ID, 10), c.Name})
	}
	r.table([]string{"ID", "NAME"}, rows)
}

func (r *Renderer) Users(users []models.User) {
	rows := make([][]string, 0, len(users))
	for _, u := range users {
		rows = append(rows, []string{strconv.FormatInt(u.ID, 10), u.Username, string(u.Role)})
	}
	r.table([]string{"ID", "USERNAME", "ROLE"}, rows)
}

func (r *Renderer) Tasks(tasks []models.Task) {
	if len(tasks) == 0 {
		r.Info("No tasks found.")
		return
	}
	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		assignee := t.AssignedToName
		if assignee == "" {
			assignee = "-"
		}
		deadline := "-"
		if t.Deadline != nil {
			deadline = t.Deadline.Format(dateLayout)
		}
		rows = append(rows, []string{
			strconv.FormatInt(t.ID, 10),
			truncate(t.Title, 40),
			r.statusStyle(t.Status).Render(string(t.Status)),
			string(t.Priority),
			assignee,
			deadline,
			t.CreatedAt.Local().Format(dateLayout),
		})
	}
	r.table([]string{"ID", "TITLE", "STATUS", "PRIORITY", "ASSIGNEE", "DEADLINE", "CREATED"}, rows)
}

func (r *Renderer) Stats(stats models.TaskStats) {
	rows := [][]string{
		{"Total", strconv.Itoa(stats.Total)},
		{string(models.StatusPending), strconv.Itoa(stats.Pending)},
		{string(models.StatusInProgress), strconv.Itoa(stats.InProgress)},
		{string(models.StatusCompleted), strconv.Itoa(stats.Completed)},
	}
	for _, p := range []models.Priority{models.PriorityLow, models.PriorityMedium, models.PriorityHigh, models.PriorityCritical} {
		rows = append(rows, []string{"Priority " + string(p), strconv.Itoa(stats.ByPriority[p])})
	}
	r.table([]string{"", "TASKS"}, rows)
}

func (r *Renderer) statusStyle(s models.Status) lipgloss.Style {
	if style, ok := r.status[s]; ok {
		return style
	}
	return r.muted
}

// Display implements notify.Displayer for the terminal.
func (r *Renderer) Display(_ context.Context, n notify.Notification) error {
	labels := make([]string, 0, len(n.Actions))
	for _, a := range n.Actions {
		labels = append(labels, fmt.Sprintf("[%s] %s", a.Action, a.Title))
	}
	body := lipgloss.JoinVertical(lipgloss.Left,
		r.header.UnsetPadding().Render(n.Title),
		n.Body,
		r.muted.Render(n.ArrivedAt.Local().Format("15:04:05")+"  "+strings.Join(labels, "  ")),
	)
	_, err := fmt.Fprintln(r.out, r.box.Render(body))
	return err
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}
