package components

import (
	"fmt"
	"math"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

// Progress renders overall run completion as a gradient bar next to a
// step counter.
type Progress struct {
	bar progress.Model
}

// NewProgress creates the progress component.
func NewProgress() Progress {
	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 34
	return Progress{bar: bar}
}

// View renders the bar for completed out of total steps. The counter shows
// the true numbers even when completed overshoots the total.
func (p Progress) View(completed, total int) string {
	ratio := 0.0
	if total > 0 {
		ratio = math.Min(1.0, float64(completed)/float64(total))
	}
	label := lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("%d/%d steps", completed, total))
	return lipgloss.JoinHorizontal(lipgloss.Left, p.bar.ViewAs(ratio), " ", label)
}
