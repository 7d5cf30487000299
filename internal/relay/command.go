package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrParse reports an operator payload that is not a valid command.
var ErrParse = errors.New("comando inválido")

// Command is one operator control message. Every field is optional; the
// browser sends partial updates such as {"en":1} on connect.
type Command struct {
	Angle *float64        `json:"angle,omitempty"`
	AC    *float64        `json:"ac,omitempty"`
	EN    *int            `json:"en,omitempty"`
	TS    json.RawMessage `json:"ts,omitempty"`
}

// ParseCommand accepts a JSON object whose known fields have numeric types
// (en must be an integer). Unknown fields are ignored.
func ParseCommand(raw []byte) (Command, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Command{}, ErrParse
	}
	var cmd Command
	if err := json.Unmarshal(trimmed, &cmd); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return cmd, nil
}

type ack struct {
	Ack json.RawMessage `json:"ack"`
}

type rawEcho struct {
	Raw string `json:"raw"`
}

// ackFor echoes a parsed command back to the operator.
func ackFor(raw []byte) []byte {
	data, err := json.Marshal(ack{Ack: json.RawMessage(raw)})
	if err != nil {
		return rawAckFor(raw)
	}
	return data
}

// rawAckFor echoes an unparseable payload as {"ack":{"raw":"..."}}.
func rawAckFor(raw []byte) []byte {
	data, _ := json.Marshal(struct {
		Ack rawEcho `json:"ack"`
	}{Ack: rawEcho{Raw: string(raw)}})
	return data
}

var greeting = []byte(`{"ready":true,"encendido":true}`)
