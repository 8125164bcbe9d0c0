package domain

type EventType string

const (
	EventData             EventType = "data"
	EventServerReady      EventType = "server-ready"
	EventDownloadProgress EventType = "download-progress"
	EventCleared          EventType = "cleared"
	EventError            EventType = "error"
)

// Event is emitted by the manager. Payload is one of the *Payload types
// below, matching Type.
type Event struct {
	Type    EventType `json:"type"`
	ID      TorrentID `json:"id"`
	Payload any       `json:"data"`
}

type DataPayload struct {
	ID   TorrentID   `json:"id"`
	Data *Descriptor `json:"data"`
}

type ServerInfo struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type ServerReadyPayload struct {
	ID     TorrentID  `json:"id"`
	URL    string     `json:"url"`
	Server ServerInfo `json:"server"`
}

type ProgressPayload struct {
	ID    TorrentID      `json:"id"`
	Speed int64          `json:"speed"`
	Files []FileProgress `json:"files"`
}

type ClearedPayload struct {
	ID TorrentID `json:"id"`
}

type ErrorPayload struct {
	ID      TorrentID `json:"id"`
	Message string    `json:"message"`
	Error   string    `json:"error"`
}

func DataEvent(id TorrentID, d *Descriptor) Event {
	return Event{Type: EventData, ID: id, Payload: DataPayload{ID: id, Data: d}}
}

func ServerReadyEvent(id TorrentID, url string, server ServerInfo) Event {
	return Event{Type: EventServerReady, ID: id, Payload: ServerReadyPayload{ID: id, URL: url, Server: server}}
}

func ProgressEvent(id TorrentID, speed int64, files []FileProgress) Event {
	return Event{Type: EventDownloadProgress, ID: id, Payload: ProgressPayload{ID: id, Speed: speed, Files: files}}
}

func ClearedEvent(id TorrentID) Event {
	return Event{Type: EventCleared, ID: id, Payload: ClearedPayload{ID: id}}
}

func ErrorEvent(id TorrentID, message string, err error) Event {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	return Event{Type: EventError, ID: id, Payload: ErrorPayload{ID: id, Message: message, Error: detail}}
}
