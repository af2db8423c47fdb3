// Package tui is the interactive ispl client: a login screen followed by the
// Chat, Policies, Workflow and Image tabs.
//
// Every orchestrator call runs inside a tea.Cmd and reports back as a tea.Msg.
// The orchestrators own their state and discard stale results themselves, so
// the view always re-reads them instead of trusting message payloads.
package tui

import (
	"context"

	"ispl/cmd/ispl/ui"
	"ispl/internal/analysis"
	"ispl/internal/api"
	"ispl/internal/artifact"
	"ispl/internal/auth"
	"ispl/internal/collection"
	"ispl/internal/conversation"
	"ispl/internal/workflowlog"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
)

// Deps are the wired orchestrators the program drives.
type Deps struct {
	Session      *auth.Manager
	Conversation *conversation.Conversation
	Collection   *collection.Collection
	Analysis     *analysis.Analysis
	Logs         *workflowlog.Viewer
	Styles       ui.Styles
}

// screen is the top-level view.
type screen int

const (
	screenLogin screen = iota
	screenMain
)

// tab is a section of the main screen.
type tab int

const (
	tabChat tab = iota
	tabPolicies
	tabWorkflow
	tabImage
	tabCount
)

func (t tab) String() string {
	return [...]string{"Chat", "Policies", "Workflow", "Image"}[t]
}

// policiesMode is the sub-state of the Policies tab.
type policiesMode int

const (
	policiesList policiesMode = iota
	policiesUpload
	policiesConfirmDelete
)

// Upload form fields.
const (
	uploadFile = iota
	uploadCompany
	uploadCategory
	uploadProductType
	uploadProductName
	uploadLevel
)

// Image form fields.
const (
	imagePath = iota
	imageQuery
)

type (
	verifyDoneMsg struct {
		session auth.Session
		err     error
	}
	loginDoneMsg struct {
		session auth.Session
		err     error
	}
	registerDoneMsg struct {
		email string
		err   error
	}
	// evictedMsg is delivered when the session ended without a local logout.
	evictedMsg  struct{}
	chatDoneMsg struct{}
	refreshDoneMsg struct {
		err error
	}
	uploadDoneMsg struct {
		policy *api.Policy
		err    error
	}
	deleteDoneMsg struct {
		id  int
		err error
	}
	artifactDoneMsg struct {
		handle *artifact.Handle
		err    error
	}
	logsDoneMsg struct {
		err error
	}
	imageSelectedMsg struct {
		err error
	}
	analysisDoneMsg struct {
		err error
	}
)

// markdownRenderer turns markdown into terminal output.
type markdownRenderer func(md string, width int) string

func glamourRenderer(dark bool) markdownRenderer {
	style := "light"
	if dark {
		style = "dark"
	}
	return func(md string, width int) string {
		if width < 20 {
			width = 20
		}
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(style),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return md
		}
		out, err := r.Render(md)
		if err != nil {
			return md
		}
		return out
	}
}

// Model is the bubbletea model of the interactive client.
type Model struct {
	ctx    context.Context
	deps   Deps
	styles ui.Styles
	render markdownRenderer

	evictions chan struct{}
	unsub     func()

	width, height int

	screen   screen
	tab      tab
	spinner  spinner.Model
	status   string // one-line feedback under the tabs
	statusOK bool

	// login screen
	login       form
	registering bool
	authBusy    bool
	authErr     string

	// chat
	chatInput form
	chatView  viewport.Model

	// policies
	policiesMode policiesMode
	cursor       int
	upload       form
	uploadErr    string

	// artifact overlay
	overlay     *artifact.Handle
	overlayView viewport.Model
	overlayErr  string

	// workflow
	logFilter string

	// image
	image    form
	imageErr string
}

// New builds the model. The caller owns ctx; cancelling it abandons any call
// still in flight.
func New(ctx context.Context, deps Deps) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = deps.Styles.Prompt

	m := Model{
		ctx:       ctx,
		deps:      deps,
		styles:    deps.Styles,
		render:    glamourRenderer(deps.Styles.Theme.IsDark),
		evictions: make(chan struct{}, 1),
		spinner:   sp,
		width:     100,
		height:    30,
		login: newForm(
			field{label: "Email", placeholder: "you@example.com"},
			field{label: "Password", secret: true},
		),
		chatInput: newForm(field{label: "Ask", placeholder: "Ask about your documents…"}),
		upload:    newUploadForm(),
		image: newForm(
			field{label: "Image", placeholder: "path/to/image.png"},
			field{label: "Question", placeholder: "What does this document cover?"},
		),
		chatView:    viewport.New(100, 20),
		overlayView: viewport.New(100, 24),
	}
	evictions := m.evictions
	m.unsub = deps.Session.OnEvict(func() {
		select {
		case evictions <- struct{}{}:
		default:
		}
	})
	if deps.Session.Current().Authenticated() {
		m.screen = screenMain
		m.authBusy = true
	}
	return m
}

func newUploadForm() form {
	return newForm(
		field{label: "File", placeholder: "path/to/document.pdf"},
		field{label: "Company"},
		field{label: "Category"},
		field{label: "Product type"},
		field{label: "Product name"},
		field{label: "Security level", placeholder: "public | semi_closed | closed", value: api.SecurityPublic},
	)
}

// Init starts the spinner, waits for eviction, and verifies a stored session.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, m.waitForEviction()}
	if m.screen == screenMain {
		cmds = append(cmds, m.verifyCmd())
	}
	return tea.Batch(cmds...)
}

// Close detaches the eviction subscription and releases open artifacts.
func (m Model) Close() {
	if m.unsub != nil {
		m.unsub()
	}
	if v := m.deps.Collection.Viewer(); v != nil {
		v.CloseAll()
	}
	m.deps.Analysis.Reset()
}
