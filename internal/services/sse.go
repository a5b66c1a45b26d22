package services

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// Event is one server-sent event.
type Event struct {
	ID    string
	Type  string
	Data  string
	Retry int
}

// Decoder reads server-sent events from a text/event-stream body.
//
// Lines may end in LF or CRLF. Comment lines are skipped, multi-line data is joined with
// LF, and an event still being assembled when the stream ends is discarded.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next returns the next complete event, or the read error (io.EOF at a clean end).
func (d *Decoder) Next() (Event, error) {
	var (
		ev      Event
		data    strings.Builder
		hasData bool
	)

	for {
		line, err := d.r.ReadString('\n')
		if err != nil {
			return Event{}, err
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if !hasData {
				ev = Event{}
				continue
			}
			ev.Data = data.String()
			return ev, nil
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		case "event":
			ev.Type = value
		case "id":
			ev.ID = value
		case "retry":
			if n, err := strconv.Atoi(value); err == nil {
				ev.Retry = n
			}
		}
	}
}

// ParseProgress decodes a progress frame's data.
//
// Values above 100 clamp to 100. -1 is the failure sentinel. Anything else that is not an
// integer in [-1, 100] is rejected.
func ParseProgress(data string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(data))
	if err != nil || n < -1 {
		return 0, false
	}
	if n > 100 {
		n = 100
	}
	return n, true
}
