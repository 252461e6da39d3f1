package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/pion/webrtc/v4"
)

var (
	labelStyle = lipgloss.NewStyle().
			Bold(true).
			Width(12).
			Foreground(lipgloss.Color("#7D56F4"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA"))

	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFA500"))

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF0000"))
)

func printStatus(label, value string) {
	fmt.Println(labelStyle.Render(label) + valueStyle.Render(value))
}

func printError(label string, err error) {
	fmt.Println(labelStyle.Render(label) + errorStyle.Render(err.Error()))
}

func printState(s webrtc.PeerConnectionState) {
	var style lipgloss.Style
	switch s {
	case webrtc.PeerConnectionStateConnected:
		style = okStyle
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
		style = errorStyle
	default:
		style = warnStyle
	}
	fmt.Println(labelStyle.Render("state") + style.Render(s.String()))
}
