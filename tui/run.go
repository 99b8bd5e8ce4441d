package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"node.town/asrbench/stream"
	"node.town/asrbench/transcript"
)

// Hooks feeds a session's callbacks into a running view.
type Hooks struct {
	send func(tea.Msg)
}

func (h Hooks) Observe(ev transcript.Event) {
	h.send(EventMsg(ev))
}

func (h Hooks) OnState(s stream.State) {
	h.send(StateMsg(s))
}

// Run shows session live until the user quits. Quitting cancels the
// context passed to session; its result and error are returned.
func Run(
	ctx context.Context,
	title string,
	session func(ctx context.Context, hooks Hooks) (transcript.Result, error),
	opts ...tea.ProgramOption,
) (transcript.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(initialModel(title, cancel), opts...)

	var (
		result transcript.Result
		err    error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		result, err = session(ctx, Hooks{send: p.Send})
		p.Send(DoneMsg{Result: result, Err: err})
	}()

	_, perr := p.Run()
	cancel()
	<-done
	if perr != nil && err == nil {
		return result, perr
	}
	return result, err
}
