package progress

import (
	"encoding/json"
	"io"
)

// JSONEmitter writes one JSON object per event, newline delimited, for
// machine consumers wrapping the CLI. Timestamps and throttling come from the
// tracker, so a consumer sees at most one line per emission interval plus the
// guaranteed terminal line.
type JSONEmitter struct {
	enc *json.Encoder
}

func NewJSONEmitter(w io.Writer) *JSONEmitter {
	return &JSONEmitter{enc: json.NewEncoder(w)}
}

func (e *JSONEmitter) Notify(ev Event) {
	e.enc.Encode(ev)
}
