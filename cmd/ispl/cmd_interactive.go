package main

import (
	"fmt"

	"ispl/cmd/ispl/tui"
	"ispl/internal/logging"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

// runInteractive starts the full-screen client.
func runInteractive(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext()
	defer cancel()

	if cfg.Session.Watch {
		// Another ispl process logging in or out updates this one.
		if err := a.store.Watch(ctx); err != nil {
			logging.SessionWarn("token file watch disabled: %v", err)
		}
	}

	m := tui.New(ctx, tui.Deps{
		Session:      a.session,
		Conversation: a.conversation,
		Collection:   a.collection,
		Analysis:     a.analysis,
		Logs:         a.logs,
		Styles:       styles(),
	})
	logging.Boot("starting interactive client against %s", cfg.API.BaseURL)

	final, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if fm, ok := final.(tui.Model); ok {
		fm.Close()
	} else {
		m.Close()
	}
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("interactive client failed: %w", err)
	}
	return nil
}
