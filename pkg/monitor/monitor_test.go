package monitor

import (
	"net"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"posewire/pkg/engine"
	"posewire/pkg/protocol"
)

func TestViewWaitsForFirstFrame(t *testing.T) {
	m := New(engine.NewLatest(), 0, 0)
	require.NotNil(t, m.Init())

	next, cmd := m.Update(tickMsg(time.Now()))
	require.NotNil(t, cmd)
	require.Contains(t, next.View(), "waiting for capture client")
}

func TestViewShowsLatestFrame(t *testing.T) {
	latest := engine.NewLatest()
	f := protocol.NewSkeletonFrame()
	f.Joints[protocol.JointHips].Local.Position = protocol.Vec3{X: 1.25}
	received := time.Unix(100, 0)
	latest.Publish(engine.FramePacket{
		Seq:      7,
		Received: received,
		Remote:   &net.TCPAddr{IP: net.IPv4(10, 0, 0, 3), Port: 9000},
		Frame:    f,
	})

	var model tea.Model = New(latest, time.Millisecond, 5)
	model, _ = model.Update(tickMsg(received.Add(40 * time.Millisecond)))
	view := model.View()

	require.Contains(t, view, "seq 7")
	require.Contains(t, view, "10.0.0.3:9000")
	require.Contains(t, view, "age 40ms")
	require.Contains(t, view, "hips_joint")
	require.Contains(t, view, " 1.250")
	require.Contains(t, view, "joints 1-5 of 91")
}

func TestKeysScrollAndQuit(t *testing.T) {
	latest := engine.NewLatest()
	latest.Publish(engine.FramePacket{Seq: 1, Frame: protocol.NewSkeletonFrame()})

	var model tea.Model = New(latest, time.Millisecond, 10)
	model, _ = model.Update(tickMsg(time.Now()))

	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyDown})
	require.Contains(t, model.View(), "joints 2-11 of 91")

	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyPgDown})
	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyPgDown})
	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyPgDown})
	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyPgDown})
	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyPgDown})
	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyPgDown})
	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyPgDown})
	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyPgDown})
	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyPgDown})
	require.True(t, strings.Contains(model.View(), "joints 82-91 of 91"))

	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyUp})
	require.Contains(t, model.View(), "joints 81-90 of 91")

	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	require.IsType(t, tea.QuitMsg{}, cmd())
}

func TestMonitorLeavesDropAccountingToRenderer(t *testing.T) {
	latest := engine.NewLatest()
	latest.Publish(engine.FramePacket{Seq: 1, Frame: protocol.NewSkeletonFrame()})

	var model tea.Model = New(latest, time.Millisecond, 5)
	model, _ = model.Update(tickMsg(time.Now()))
	require.Contains(t, model.View(), "seq 1")

	latest.Publish(engine.FramePacket{Seq: 2, Frame: protocol.NewSkeletonFrame()})
	stats := latest.Stats()
	require.Equal(t, uint64(1), stats.Dropped)
	require.Equal(t, uint64(0), stats.Loaded)
}
