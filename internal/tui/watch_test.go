package tui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"

	"github.com/Anansitrading/kijko/pkg/progress"
)

func newTestModel() Model {
	_, _, updates := Pump()
	return NewModel("p1", nil, updates)
}

func TestNewModel(t *testing.T) {
	m := newTestModel()
	assert.Equal(t, "p1", m.projectID)
	assert.Equal(t, progress.StateDisconnected, m.state)
	assert.False(t, m.quitting)
}

func TestModel_Init(t *testing.T) {
	m := newTestModel()
	assert.NotNil(t, m.Init())
}

func TestModel_Update_QuitKey(t *testing.T) {
	m := newTestModel()

	keyMsg := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}}
	updated, cmd := m.Update(keyMsg)

	assert.True(t, updated.(Model).quitting)
	assert.NotNil(t, cmd)
}

func TestModel_Update_SnapshotMsg(t *testing.T) {
	m := newTestModel()

	eta := time.Now().Add(time.Minute)
	updated, cmd := m.Update(snapshotMsg(progress.Snapshot{
		ProjectID:      "p1",
		Status:         progress.StatusRunning,
		Phase:          "chunking",
		PhasePercent:   40,
		OverallPercent: 45,
		EstimatedEnd:   &eta,
		Metrics:        map[string]int64{"files_parsed": 128},
	}))

	got := updated.(Model)
	assert.True(t, got.haveSnap)
	assert.Equal(t, "chunking", got.snap.Phase)
	assert.Equal(t, []float64{45}, got.history)
	assert.False(t, got.lastUpdate.IsZero())
	assert.NotNil(t, cmd)
}

func TestModel_Update_StateMsg(t *testing.T) {
	m := newTestModel()

	updated, cmd := m.Update(stateMsg(progress.StatePolling))
	got := updated.(Model)
	assert.Equal(t, progress.StatePolling, got.state)
	assert.NotNil(t, cmd)

	// Terminal states quit after draining remaining messages.
	updated, cmd = m.Update(stateMsg(progress.StateCompleted))
	assert.Equal(t, progress.StateCompleted, updated.(Model).state)
	assert.NotNil(t, cmd)
}

func TestModel_View_Running(t *testing.T) {
	m := newTestModel()
	m.state = progress.StateConnected
	m.haveSnap = true
	m.snap = progress.Snapshot{
		ProjectID:      "p1",
		Status:         progress.StatusRunning,
		Phase:          "chunking",
		PhasePercent:   40,
		OverallPercent: 45,
		Metrics:        map[string]int64{"files_parsed": 128, "chunks_created": 512},
	}
	m.history = []float64{10, 25, 45}
	m.lastUpdate = time.Date(2026, 1, 1, 12, 34, 56, 0, time.UTC)

	view := m.View()

	assert.Contains(t, view, "kijko watch")
	assert.Contains(t, view, "LIVE")
	assert.Contains(t, view, "p1")
	assert.Contains(t, view, "12:34:56")
	assert.Contains(t, view, "Chunk")
	assert.Contains(t, view, "45%")
	assert.Contains(t, view, "Files")
	assert.Contains(t, view, "128")
	assert.Contains(t, view, "[q]")
	assert.Contains(t, view, "[r]")
}

func TestModel_View_Polling(t *testing.T) {
	m := newTestModel()
	m.state = progress.StatePolling

	view := m.View()
	assert.Contains(t, view, "POLLING")
	assert.Contains(t, view, "waiting for updates")
}

func TestModel_View_Failed(t *testing.T) {
	m := newTestModel()
	m.state = progress.StateConnected
	m.haveSnap = true
	m.snap = progress.Snapshot{
		Status:       progress.StatusFailed,
		Phase:        "parsing",
		ErrorCode:    "clone_failed",
		ErrorMessage: "repository unreachable",
	}

	view := m.View()
	assert.Contains(t, view, "clone_failed")
	assert.Contains(t, view, "repository unreachable")
}

func TestAppendToHistory(t *testing.T) {
	history := make([]float64, 0, historySize)
	for i := 0; i < historySize+10; i++ {
		history = appendToHistory(history, float64(i))
	}
	assert.Len(t, history, historySize)
	assert.Equal(t, float64(10), history[0])
}

func TestPhaseIndex(t *testing.T) {
	assert.Equal(t, 0, phaseIndex("repository_fetch"))
	assert.Equal(t, 4, phaseIndex("indexing"))
	assert.Equal(t, -1, phaseIndex("unknown"))
}
