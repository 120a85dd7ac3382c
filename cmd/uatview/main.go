// uatview is a terminal viewer for a dump978 JSON feed. It connects to a
// daemon's JSON port and shows a live table of the aircraft being received.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zberry/dump978/pkg/uat"
)

// Aircraft older than this drop off the display.
const displayTimeout = 60 * time.Second

type target struct {
	msg      uat.AdsbMessage
	messages int
	lastSeen time.Time
}

type model struct {
	addr     string
	targets  map[string]*target
	selected int
	feed     chan uat.AdsbMessage
	errs     chan error
	err      error
}

type feedMsg uat.AdsbMessage
type feedErrMsg error
type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) waitForFeed() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-m.feed:
			return feedMsg(msg)
		case err := <-m.errs:
			return feedErrMsg(err)
		}
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(tick(), m.waitForFeed())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
		case "down", "j":
			if m.selected < len(m.targets)-1 {
				m.selected++
			}
		}

	case feedMsg:
		t, ok := m.targets[msg.Address]
		if !ok {
			t = &target{}
			m.targets[msg.Address] = t
		}
		mergeMessage(&t.msg, uat.AdsbMessage(msg))
		t.messages++
		t.lastSeen = time.Now()
		return m, m.waitForFeed()

	case feedErrMsg:
		m.err = msg
		return m, tea.Quit

	case tickMsg:
		for addr, t := range m.targets {
			if time.Since(t.lastSeen) > displayTimeout {
				delete(m.targets, addr)
			}
		}
		if m.selected >= len(m.targets) && m.selected > 0 {
			m.selected = len(m.targets) - 1
		}
		return m, tick()
	}

	return m, nil
}

// mergeMessage folds a new message into the retained state so sparse frames
// don't blank out fields the previous frames carried.
func mergeMessage(dst *uat.AdsbMessage, src uat.AdsbMessage) {
	dst.Address = src.Address
	dst.AddrType = src.AddrType
	dst.Timestamp = src.Timestamp
	if src.Position != nil {
		dst.Position = src.Position
	}
	if src.PressureAltitude != nil {
		dst.PressureAltitude = src.PressureAltitude
	}
	if src.GroundSpeed != nil {
		dst.GroundSpeed = src.GroundSpeed
	}
	if src.TrueTrack != nil {
		dst.TrueTrack = src.TrueTrack
	}
	if src.VerticalRateBaro != nil {
		dst.VerticalRateBaro = src.VerticalRateBaro
	}
	if src.Callsign != nil {
		dst.Callsign = src.Callsign
	}
	if src.Squawk != nil {
		dst.Squawk = src.Squawk
	}
	if src.EmitterCategory != nil {
		dst.EmitterCategory = src.EmitterCategory
	}
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func (m model) View() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(fmt.Sprintf("UAT traffic - %s", m.addr)))
	s.WriteString("\n\n")

	if m.err != nil {
		s.WriteString(errStyle.Render(fmt.Sprintf("Feed error: %v", m.err)))
		s.WriteString("\n")
		return s.String()
	}

	s.WriteString(headerStyle.Render(fmt.Sprintf("%-8s %-9s %-8s %-6s %5s %4s %7s %-20s %4s %4s",
		"ADDR", "TYPE", "CALLSIGN", "SQUAWK", "ALT", "GS", "TRACK", "POSITION", "MSGS", "AGE")))
	s.WriteString("\n")

	addrs := make([]string, 0, len(m.targets))
	for addr := range m.targets {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	for i, addr := range addrs {
		t := m.targets[addr]
		line := fmt.Sprintf("%-8s %-9s %-8s %-6s %5s %4s %7s %-20s %4d %3.0fs",
			addr,
			t.msg.AddrType,
			strOr(t.msg.Callsign, "-"),
			strOr(t.msg.Squawk, "-"),
			intOr(t.msg.PressureAltitude, "-"),
			intOr(t.msg.GroundSpeed, "-"),
			trackOr(t.msg.TrueTrack),
			positionOr(t.msg.Position),
			t.messages,
			time.Since(t.lastSeen).Seconds())
		if i == m.selected {
			s.WriteString(selectedStyle.Render("> " + line))
		} else {
			s.WriteString("  " + line)
		}
		s.WriteString("\n")
	}

	if len(addrs) == 0 {
		s.WriteString(dimStyle.Render("  (no traffic yet)"))
		s.WriteString("\n")
	}

	s.WriteString("\n")
	s.WriteString(dimStyle.Render(fmt.Sprintf("%d aircraft  ↑/↓: Select  Q: Quit", len(addrs))))
	s.WriteString("\n")

	return s.String()
}

func strOr(v *string, alt string) string {
	if v == nil {
		return alt
	}
	return *v
}

func intOr(v *int, alt string) string {
	if v == nil {
		return alt
	}
	return fmt.Sprintf("%d", *v)
}

func trackOr(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%5.1f°", *v)
}

func positionOr(p *uat.Position) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%.4f,%.4f", p.Lat, p.Lon)
}

// readFeed streams newline-delimited JSON from the daemon into the model.
func readFeed(conn net.Conn, feed chan<- uat.AdsbMessage, errs chan<- error) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var msg uat.AdsbMessage
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			continue
		}
		feed <- msg
	}
	if err := scanner.Err(); err != nil {
		errs <- err
		return
	}
	errs <- fmt.Errorf("connection closed")
}

func main() {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	var addr string

	rootCmd := &cobra.Command{
		Use:   "uatview",
		Short: "Terminal viewer for a dump978 JSON feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := net.Dial("tcp", addr)
			if err != nil {
				return fmt.Errorf("connecting to %s: %w", addr, err)
			}
			defer conn.Close()

			m := model{
				addr:    addr,
				targets: make(map[string]*target),
				feed:    make(chan uat.AdsbMessage, 64),
				errs:    make(chan error, 1),
			}
			go readFeed(conn, m.feed, m.errs)

			p := tea.NewProgram(m, tea.WithAltScreen())
			if _, err := p.Run(); err != nil {
				return err
			}
			return nil
		},
	}

	rootCmd.Flags().StringVarP(&addr, "connect", "c", "localhost:30979", "Daemon JSON port to connect to")

	if err := rootCmd.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
