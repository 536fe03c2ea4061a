package export

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleGrid() Grid {
	return Grid{
		Title: "Weekly timetable tt-1",
		Days:  []string{"MONDAY", "WEDNESDAY"},
		Rows: []GridRow{
			{
				TimeRange: "08:00-09:00",
				Cells: map[string]string{
					"MONDAY":    "math / teacher-1 / room-1",
					"WEDNESDAY": "science / teacher-2 / room-2",
				},
			},
			{
				TimeRange: "10:00-10:15",
				Cells: map[string]string{
					"MONDAY": "SHORT_BREAK",
				},
			},
		},
	}
}

func TestCSVExporterRender(t *testing.T) {
	payload, err := NewCSVExporter().Render(sampleGrid())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(payload)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Time,MONDAY,WEDNESDAY", lines[0])
	assert.Equal(t, "08:00-09:00,math / teacher-1 / room-1,science / teacher-2 / room-2", lines[1])
	assert.Equal(t, "10:00-10:15,SHORT_BREAK,", lines[2])
}

func TestCSVExporterRejectsEmptyDays(t *testing.T) {
	_, err := NewCSVExporter().Render(Grid{})
	assert.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	payload, err := NewPDFExporter().Render(sampleGrid())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(payload), "%PDF"))
}

func TestPDFExporterRejectsEmptyDays(t *testing.T) {
	_, err := NewPDFExporter().Render(Grid{})
	assert.Error(t, err)
}
