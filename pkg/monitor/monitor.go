// Package monitor is a terminal view of the most recent skeleton frame.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"posewire/pkg/engine"
	"posewire/pkg/protocol"
)

const (
	DefaultInterval = 100 * time.Millisecond
	DefaultPageSize = 20
)

type tickMsg time.Time

// Model polls the hand-off slot on a timer, so the receiver never waits on
// the terminal.
type Model struct {
	latest   *engine.Latest
	interval time.Duration
	pageSize int

	pkt    engine.FramePacket
	have   bool
	stats  engine.LatestStats
	offset int
	now    time.Time
}

func New(latest *engine.Latest, interval time.Duration, pageSize int) Model {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return Model{latest: latest, interval: interval, pageSize: pageSize}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Init() tea.Cmd {
	return m.tick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.now = time.Time(msg)
		if pkt, ok := m.latest.Peek(); ok {
			m.pkt, m.have = pkt, true
		}
		m.stats = m.latest.Stats()
		return m, m.tick()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "down", "j":
			m.offset = min(m.offset+1, m.maxOffset())
		case "up", "k":
			m.offset = max(m.offset-1, 0)
		case "pgdown", " ", "space":
			m.offset = min(m.offset+m.pageSize, m.maxOffset())
		case "pgup":
			m.offset = max(m.offset-m.pageSize, 0)
		case "home":
			m.offset = 0
		}
	}
	return m, nil
}

func (m Model) maxOffset() int {
	return max(protocol.JointCount-m.pageSize, 0)
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString("posewire monitor\n")
	if !m.have {
		b.WriteString("waiting for capture client...\n\n")
		b.WriteString("q quit\n")
		return b.String()
	}

	remote := "-"
	if m.pkt.Remote != nil {
		remote = m.pkt.Remote.String()
	}
	age := "-"
	if !m.now.IsZero() && !m.pkt.Received.IsZero() {
		age = m.now.Sub(m.pkt.Received).Truncate(time.Millisecond).String()
	}
	fmt.Fprintf(&b, "seq %d  from %s  age %s\n", m.pkt.Seq, remote, age)
	fmt.Fprintf(&b, "published %d  dropped %d\n\n", m.stats.Published, m.stats.Dropped)

	fmt.Fprintf(&b, "%-28s %-26s %-34s %-26s\n", "joint", "local position", "local rotation", "model position")
	end := min(m.offset+m.pageSize, protocol.JointCount)
	for i := m.offset; i < end; i++ {
		j := protocol.Joint(i)
		jp := m.pkt.Frame.Joints[i]
		fmt.Fprintf(&b, "%-28s %-26s %-34s %-26s\n",
			j.String(),
			formatVec(jp.Local.Position),
			formatQuat(jp.Local.Orientation),
			formatVec(jp.Model.Position),
		)
	}
	fmt.Fprintf(&b, "\njoints %d-%d of %d  up/down scroll  q quit\n", m.offset+1, end, protocol.JointCount)
	return b.String()
}

func formatVec(v protocol.Vec3) string {
	return fmt.Sprintf("(%6.3f %6.3f %6.3f)", v.X, v.Y, v.Z)
}

func formatQuat(q protocol.Quat) string {
	return fmt.Sprintf("(%6.3f %6.3f %6.3f %6.3f)", q.X, q.Y, q.Z, q.W)
}

// Run drives the model until the user quits or ctx is cancelled.
func Run(ctx context.Context, latest *engine.Latest, in io.Reader, out io.Writer) error {
	opts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}
	if in != nil {
		opts = append(opts, tea.WithInput(in))
	}
	if out != nil {
		opts = append(opts, tea.WithOutput(out))
	}
	p := tea.NewProgram(New(latest, DefaultInterval, DefaultPageSize), opts...)
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
