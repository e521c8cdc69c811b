package components

import (
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// VenueStatus is a venue's last known refresh outcome.
type VenueStatus struct {
	Name      string
	Healthy   bool
	Edges     int
	UpdatedAt time.Time
}

// VenuesComponent renders venue liveness.
type VenuesComponent struct {
	venues map[string]VenueStatus
}

// NewVenuesComponent creates a new venues component.
func NewVenuesComponent() *VenuesComponent {
	return &VenuesComponent{venues: make(map[string]VenueStatus)}
}

// Update records a venue's latest status.
func (v *VenuesComponent) Update(status VenueStatus) {
	v.venues[status.Name] = status
}

// View renders the venues component.
func (v *VenuesComponent) View() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	okStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	downStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	mutedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))

	result := headerStyle.Render("VENUES") + "\n\n"
	if len(v.venues) == 0 {
		return result + mutedStyle.Render("  Waiting for first refresh...")
	}

	names := make([]string, 0, len(v.venues))
	for name := range v.venues {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		s := v.venues[name]
		icon := okStyle.Render("●")
		if !s.Healthy {
			icon = downStyle.Render("○")
		}
		ago := time.Since(s.UpdatedAt).Round(time.Second)
		result += fmt.Sprintf("  %s %-12s %4d edges %s\n",
			icon, s.Name, s.Edges, mutedStyle.Render(fmt.Sprintf("(%s ago)", ago)))
	}

	return result
}
