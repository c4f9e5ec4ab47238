// Package codec carries a machine-actionable payload inside agent prose.
//
// A text holds at most one block, delimited by StartMarker and EndMarker. The
// payload is a JSON object with a mandatory "action" string; every other key
// is action data. Prose outside the markers is preserved byte for byte.
//
//	I tagged your entry.<<<ACTION>>>{"action":"apply_tags","tags":["calm"]}<<<END_ACTION>>>
//
// Decode is total: it never panics and always returns usable prose, even for
// malformed input.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/journalmesh/core"
)

// Block markers.
const (
	StartMarker = "<<<ACTION>>>"
	EndMarker   = "<<<END_ACTION>>>"
)

// Block is a structured, backend-actionable instruction.
//
// Data holds the payload keys other than "action", with the value types
// encoding/json produces for an untyped decode: numbers are float64,
// arrays []any and objects map[string]any. An empty Data decodes as nil.
type Block struct {
	Action string         `json:"action"`
	Data   map[string]any `json:"data,omitempty"`
}

// ErrReservedKey is returned by Encode for a Data key named "action".
var ErrReservedKey = errors.New(`block data must not contain the "action" key`)

// MarshalJSON flattens Data next to action.
func (b Block) MarshalJSON() ([]byte, error) {
	if _, ok := b.Data["action"]; ok {
		return nil, ErrReservedKey
	}
	m := make(map[string]any, len(b.Data)+1)
	for k, v := range b.Data {
		m[k] = v
	}
	m["action"] = b.Action
	return json.Marshal(m)
}

// UnmarshalJSON reads a flat payload object.
func (b *Block) UnmarshalJSON(raw []byte) error {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return err
	}
	if m == nil {
		return errors.New("payload is not an object")
	}

	action, ok := m["action"].(string)
	if !ok || strings.TrimSpace(action) == "" {
		return errors.New(`payload has no "action"`)
	}
	delete(m, "action")

	b.Action = action
	b.Data = nil
	if len(m) > 0 {
		b.Data = m
	}
	return nil
}

// Decoded is the result of Decode.
type Decoded struct {
	Prose string `json:"prose"`
	Block *Block `json:"block,omitempty"`
}

// Encode appends block to prose. A nil block returns prose unchanged.
func Encode(prose string, block *Block) (string, error) {
	if block == nil {
		return prose, nil
	}
	if strings.TrimSpace(block.Action) == "" {
		return "", errors.New("block has no action")
	}
	if strings.Contains(prose, StartMarker) || strings.Contains(prose, EndMarker) {
		return "", fmt.Errorf("prose contains a block marker")
	}
	if _, ok := block.Data["action"]; ok {
		return "", ErrReservedKey
	}

	payload, err := json.Marshal(block)
	if err != nil {
		return "", fmt.Errorf("encode block: %w", err)
	}

	var b strings.Builder
	b.Grow(len(prose) + len(StartMarker) + len(payload) + len(EndMarker))
	b.WriteString(prose)
	b.WriteString(StartMarker)
	b.Write(payload)
	b.WriteString(EndMarker)

	return b.String(), nil
}

// Decode splits text into prose and an optional block.
//
// A structural problem (a marker without its pair, reversed markers, more
// than one pair) returns the whole text as prose. A bad payload between a
// well formed pair returns the surrounding prose. Both report an error
// wrapping core.ErrMalformedBlock and never a block.
func Decode(text string) (Decoded, error) {
	starts := strings.Count(text, StartMarker)
	ends := strings.Count(text, EndMarker)

	if starts == 0 && ends == 0 {
		return Decoded{Prose: text}, nil
	}

	if starts != 1 || ends != 1 {
		return Decoded{Prose: text}, fmt.Errorf("%w: found %d start and %d end markers", core.ErrMalformedBlock, starts, ends)
	}

	si := strings.Index(text, StartMarker)
	ei := strings.Index(text, EndMarker)
	if ei < si+len(StartMarker) {
		return Decoded{Prose: text}, fmt.Errorf("%w: end marker before start marker", core.ErrMalformedBlock)
	}

	prose := text[:si] + text[ei+len(EndMarker):]
	payload := strings.TrimSpace(text[si+len(StartMarker) : ei])

	var block Block
	if err := json.Unmarshal([]byte(payload), &block); err != nil {
		return Decoded{Prose: prose}, fmt.Errorf("%w: %v", core.ErrMalformedBlock, err)
	}

	return Decoded{Prose: prose, Block: &block}, nil
}
