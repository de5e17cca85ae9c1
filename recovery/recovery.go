package recovery

// Strategy decides how parsing proceeds after a structural error.
type Strategy interface {
	OnError(err error, location Location) Action
}

// Location pins an error to a byte offset and the component that hit it.
type Location struct {
	ByteOffset int64
	ObjectNum  int
	ObjectGen  int
	Component  string
}

type Action int

const (
	ActionFail Action = iota
	ActionSkip
	ActionFix
	ActionWarn
)
