package tui

import (
	"strings"

	"ispl/cmd/ispl/ui"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// field describes one input of a form.
type field struct {
	label       string
	placeholder string
	secret      bool
	value       string
}

// form is a vertical list of text inputs with one focused at a time.
type form struct {
	labels []string
	inputs []textinput.Model
	focus  int
}

func newForm(fields ...field) form {
	f := form{}
	for _, fd := range fields {
		in := textinput.New()
		in.Placeholder = fd.placeholder
		in.Prompt = ""
		in.CharLimit = 512
		in.SetValue(fd.value)
		if fd.secret {
			in.EchoMode = textinput.EchoPassword
			in.EchoCharacter = '•'
		}
		f.labels = append(f.labels, fd.label)
		f.inputs = append(f.inputs, in)
	}
	if len(f.inputs) > 0 {
		f.inputs[0].Focus()
	}
	return f
}

func (f *form) value(i int) string {
	return strings.TrimSpace(f.inputs[i].Value())
}

// raw returns the untrimmed value, used for passwords.
func (f *form) raw(i int) string {
	return f.inputs[i].Value()
}

func (f *form) set(i int, v string) {
	f.inputs[i].SetValue(v)
}

func (f *form) onLast() bool { return f.focus == len(f.inputs)-1 }

func (f *form) move(delta int) {
	if len(f.inputs) == 0 {
		return
	}
	f.inputs[f.focus].Blur()
	f.focus = (f.focus + delta + len(f.inputs)) % len(f.inputs)
	f.inputs[f.focus].Focus()
}

func (f *form) focusOn(i int) {
	f.move(i - f.focus)
}

// reset clears every input except those listed in keep.
func (f *form) reset(keep ...int) {
	kept := make(map[int]bool, len(keep))
	for _, k := range keep {
		kept[k] = true
	}
	for i := range f.inputs {
		if !kept[i] {
			f.inputs[i].SetValue("")
		}
	}
	f.focusOn(0)
}

// update handles navigation keys and forwards everything else to the focused
// input. It reports whether enter was pressed on the last field.
func (f *form) update(msg tea.Msg) (tea.Cmd, bool) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "tab", "down":
			f.move(1)
			return nil, false
		case "shift+tab", "up":
			f.move(-1)
			return nil, false
		case "enter":
			if f.onLast() {
				return nil, true
			}
			f.move(1)
			return nil, false
		}
	}
	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return cmd, false
}

func (f *form) view(s ui.Styles) string {
	width := 0
	for _, l := range f.labels {
		if len(l) > width {
			width = len(l)
		}
	}
	var sb strings.Builder
	for i, in := range f.inputs {
		label := f.labels[i] + strings.Repeat(" ", width-len(f.labels[i]))
		if i == f.focus {
			sb.WriteString(s.Prompt.Render("› " + label))
		} else {
			sb.WriteString(s.Muted.Render("  " + label))
		}
		sb.WriteString("  ")
		sb.WriteString(in.View())
		sb.WriteString("\n")
	}
	return sb.String()
}
