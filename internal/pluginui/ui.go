// Package pluginui is the immediate-mode surface handed to a plugin's UpdateUI.
// The host renders the collected commands; clicks from the previous frame are
// reported back through Context.
package pluginui

// CommandKind names a UI element.
type CommandKind string

const (
	KindLabel     CommandKind = "label"
	KindButton    CommandKind = "button"
	KindSeparator CommandKind = "separator"
)

// Command is one element emitted during a frame.
type Command struct {
	Kind CommandKind `json:"kind"`
	Text string      `json:"text,omitempty"`
}

// Context describes the frame being built.
type Context struct {
	Frame   uint64
	clicked map[string]bool
}

// NewContext returns a context for frame with the given buttons reported as clicked.
func NewContext(frame uint64, clicked ...string) *Context {
	ctx := &Context{Frame: frame, clicked: make(map[string]bool, len(clicked))}
	for _, text := range clicked {
		ctx.clicked[text] = true
	}
	return ctx
}

// Response is the interaction result of one element.
type Response struct {
	Clicked bool
}

// UI collects the commands of one frame.
type UI struct {
	ctx      *Context
	commands []Command
}

// New starts an empty frame.
func New(ctx *Context) *UI {
	return &UI{ctx: ctx}
}

// Label adds a text label.
func (u *UI) Label(text string) Response {
	u.commands = append(u.commands, Command{Kind: KindLabel, Text: text})
	return Response{}
}

// Button adds a button. Buttons are identified by their text.
func (u *UI) Button(text string) Response {
	u.commands = append(u.commands, Command{Kind: KindButton, Text: text})
	return Response{Clicked: u.ctx != nil && u.ctx.clicked[text]}
}

// Separator adds a horizontal rule.
func (u *UI) Separator() {
	u.commands = append(u.commands, Command{Kind: KindSeparator})
}

// Commands returns what was emitted so far.
func (u *UI) Commands() []Command {
	return u.commands
}
