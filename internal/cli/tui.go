package cli

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/matzehuels/padlock/pkg/lockfile"
)

// List styles.
var (
	listSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	listNormalStyle   = lipgloss.NewStyle().Foreground(colorWhite)
	listDimStyle      = lipgloss.NewStyle().Foreground(colorDim)
)

// PackageListModel is the bubbletea model for interactive package
// selection from a lock.
type PackageListModel struct {
	Packages []lockfile.Package
	Cursor   int
	Selected *lockfile.Package
	Height   int
	Offset   int
}

// NewPackageListModel creates a new package list model.
func NewPackageListModel(packages []lockfile.Package) PackageListModel {
	return PackageListModel{
		Packages: packages,
		Height:   15,
	}
}

func (m PackageListModel) Init() tea.Cmd {
	return nil
}

func (m PackageListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
				if m.Cursor < m.Offset {
					m.Offset = m.Cursor
				}
			}
		case "down", "j":
			if m.Cursor < len(m.Packages)-1 {
				m.Cursor++
				if m.Cursor >= m.Offset+m.Height {
					m.Offset = m.Cursor - m.Height + 1
				}
			}
		case "enter":
			pkg := m.Packages[m.Cursor]
			m.Selected = &pkg
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.Height = msg.Height - 6
		if m.Height < 5 {
			m.Height = 5
		}
	}
	return m, nil
}

func (m PackageListModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Select Package"))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  ⏎ select  q quit"))
	b.WriteString("\n\n")

	end := m.Offset + m.Height
	if end > len(m.Packages) {
		end = len(m.Packages)
	}

	for i := m.Offset; i < end; i++ {
		pkg := m.Packages[i]

		cursor := "  "
		style := listNormalStyle
		if i == m.Cursor {
			cursor = "▸ "
			style = listSelectedStyle
		}

		tag := ""
		if pkg.Category == "dev" {
			tag = listDimStyle.Render(" (dev)")
		} else if pkg.Optional {
			tag = listDimStyle.Render(" (optional)")
		}

		line := fmt.Sprintf("%s%s %s%s", cursor,
			style.Render(pkg.Name),
			listDimStyle.Render(pkg.Version), tag)
		b.WriteString(line)
		b.WriteString("\n")
	}

	if len(m.Packages) > m.Height {
		b.WriteString("\n")
		b.WriteString(listDimStyle.Render(
			fmt.Sprintf("%d/%d packages", m.Cursor+1, len(m.Packages))))
	}
	return b.String()
}

// pickPackage runs the interactive picker and returns the selection,
// or nil when the user quit without choosing.
func pickPackage(packages []lockfile.Package) (*lockfile.Package, error) {
	model := NewPackageListModel(packages)
	final, err := tea.NewProgram(model).Run()
	if err != nil {
		return nil, err
	}
	if m, ok := final.(PackageListModel); ok {
		return m.Selected, nil
	}
	return nil, nil
}
