package download

import "errors"

// State is the lifecycle state of one download item.
type State string

const (
	StateIdle        State = "idle"
	StateDownloading State = "downloading"
	StateRetrying    State = "retrying"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
	StateCancelled   State = "cancelled"
)

// Terminal reports whether the state ends the item's lifecycle.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// Admission errors returned synchronously by Pool.Start.
var (
	ErrLimitReached      = errors.New("download: concurrent download limit reached")
	ErrDuplicateFilename = errors.New("download: file is already being downloaded")
	ErrFileExists        = errors.New("download: destination file already exists")
	ErrNotFound          = errors.New("download: no such download")
)

// ItemView is the wire representation of one download item.
type ItemView struct {
	ID             string  `json:"id"`
	URL            string  `json:"url"`
	Filename       string  `json:"filename"`
	State          State   `json:"state"`
	BytesWritten   int64   `json:"bytesWritten"`
	BytesExpected  int64   `json:"bytesExpected"` // 0 when unknown
	Progress       float64 `json:"progress"`      // 0.0 to 1.0, 0 when expected unknown
	ProgressString string  `json:"progressString"`
	RetryCount     int     `json:"retryCount"`
	Error          string  `json:"error,omitempty"`
	LocalPath      string  `json:"localPath,omitempty"` // set once completed
}

// Event types broadcast to the presentation layer.
const (
	EventState     = "downloads:state"
	EventStarted   = "download:started"
	EventProgress  = "download:progress"
	EventRetrying  = "download:retrying"
	EventCompleted = "download:completed"
	EventFailed    = "download:failed"
	EventCancelled = "download:cancelled"
)
