package sqlbuilder

import "strconv"

// PlaceholderStyle selects the bind-parameter syntax of the target driver.
type PlaceholderStyle int

const (
	PlaceholderQuestion PlaceholderStyle = iota // ? (sqlite)
	PlaceholderDollar                           // $1, $2, ... (postgres)
)

// Builder accumulates bind arguments and emits the matching placeholder for
// each. One Builder per statement.
type Builder struct {
	Style PlaceholderStyle
	args  []any
}

func New(style PlaceholderStyle) *Builder {
	return &Builder{Style: style, args: make([]any, 0)}
}

// Arg registers a bind argument and returns its placeholder. Dollar
// placeholders are numbered by registration order, starting at $1.
func (b *Builder) Arg(v any) string {
	b.args = append(b.args, v)
	if b.Style == PlaceholderDollar {
		return "$" + strconv.Itoa(len(b.args))
	}
	return "?"
}

// Args returns the registered arguments in placeholder order.
func (b *Builder) Args() []any { return b.args }

// Len reports how many arguments have been registered.
func (b *Builder) Len() int { return len(b.args) }
