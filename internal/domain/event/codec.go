package event

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrKindMissing indicates a wire payload without a kind discriminator.
var ErrKindMissing = errors.New("event kind missing")

// maxLineBytes bounds a single NDJSON line. Image chunk fragments carry
// base64 payloads well past bufio's default token size.
const maxLineBytes = 8 << 20

// envelope is the flat wire form shared by all kinds. The kind field
// disambiguates, so unrelated variants may reuse a field name.
type envelope struct {
	Kind         string   `json:"kind"`
	ResponseID   string   `json:"response_id,omitempty"`
	Agent        string   `json:"agent,omitempty"`
	OutputIndex  int      `json:"output_index,omitempty"`
	ItemID       string   `json:"item_id,omitempty"`
	Workflow     *Context `json:"workflow,omitempty"`
	ItemType     string   `json:"item_type,omitempty"`
	Role         string   `json:"role,omitempty"`
	Status       string   `json:"status,omitempty"`
	ContentIndex int      `json:"content_index,omitempty"`
	Delta        string   `json:"delta,omitempty"`
	Text         string   `json:"text,omitempty"`
	Tool         *Tool    `json:"tool,omitempty"`
	Arguments    string   `json:"arguments,omitempty"`
	Code         string   `json:"code,omitempty"`
	Output       string   `json:"output,omitempty"`
	Error        string   `json:"error,omitempty"`
	Message      string   `json:"message,omitempty"`
	EntityKind   string   `json:"entity_kind,omitempty"`
	EntityID     string   `json:"entity_id,omitempty"`
	Field        string   `json:"field,omitempty"`
	PartIndex    int      `json:"part_index,omitempty"`
	ChunkIndex   int      `json:"chunk_index,omitempty"`
	Encoding     string   `json:"encoding,omitempty"`
	Data         string   `json:"data,omitempty"`
}

// Decode parses a single wire event. Unknown kinds decode to Unknown
// rather than failing, so older builds tolerate newer feeds.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if env.Kind == "" {
		return nil, ErrKindMissing
	}
	meta := Meta{
		ResponseID:  env.ResponseID,
		Agent:       env.Agent,
		OutputIndex: env.OutputIndex,
		ItemID:      env.ItemID,
		Workflow:    env.Workflow,
	}
	switch Kind(env.Kind) {
	case KindItemAdded:
		return ItemAdded{Meta: meta, ItemType: env.ItemType, Role: env.Role, Status: env.Status}, nil
	case KindItemDone:
		return ItemDone{Meta: meta, ItemType: env.ItemType, Role: env.Role, Status: env.Status}, nil
	case KindMessageDelta:
		return MessageDelta{Meta: meta, ContentIndex: env.ContentIndex, Delta: env.Delta}, nil
	case KindRefusalDelta:
		return RefusalDelta{Meta: meta, ContentIndex: env.ContentIndex, Delta: env.Delta}, nil
	case KindRefusalDone:
		return RefusalDone{Meta: meta, ContentIndex: env.ContentIndex, Text: env.Text}, nil
	case KindReasoningDelta:
		return ReasoningDelta{Meta: meta, Delta: env.Delta}, nil
	case KindToolStatus:
		var tool Tool
		if env.Tool != nil {
			tool = *env.Tool
		}
		return ToolStatus{Meta: meta, Tool: tool}, nil
	case KindToolArgsDelta:
		return ToolArgsDelta{Meta: meta, Delta: env.Delta}, nil
	case KindToolArgsDone:
		return ToolArgsDone{Meta: meta, Arguments: env.Arguments}, nil
	case KindToolCodeDelta:
		return ToolCodeDelta{Meta: meta, Delta: env.Delta}, nil
	case KindToolCodeDone:
		return ToolCodeDone{Meta: meta, Code: env.Code}, nil
	case KindToolOutput:
		return ToolOutput{Meta: meta, Output: env.Output, Error: env.Error}, nil
	case KindChunkDelta:
		return ChunkDelta{
			Meta:       meta,
			EntityKind: env.EntityKind,
			EntityID:   env.EntityID,
			Field:      env.Field,
			PartIndex:  env.PartIndex,
			ChunkIndex: env.ChunkIndex,
			Encoding:   env.Encoding,
			Data:       env.Data,
		}, nil
	case KindChunkDone:
		return ChunkDone{
			Meta:       meta,
			EntityKind: env.EntityKind,
			EntityID:   env.EntityID,
			Field:      env.Field,
			PartIndex:  env.PartIndex,
		}, nil
	case KindLifecycle:
		return Lifecycle{Meta: meta, Status: env.Status}, nil
	case KindFinal:
		return Final{Meta: meta, Status: env.Status}, nil
	case KindError:
		return RunError{Meta: meta, Code: env.Code, Message: env.Message}, nil
	default:
		return Unknown{Meta: meta, RawKind: env.Kind}, nil
	}
}

// Encode serializes an event back to its flat wire form.
func Encode(ev Event) ([]byte, error) {
	m := ev.EventMeta()
	env := envelope{
		Kind:        string(ev.EventKind()),
		ResponseID:  m.ResponseID,
		Agent:       m.Agent,
		OutputIndex: m.OutputIndex,
		ItemID:      m.ItemID,
		Workflow:    m.Workflow,
	}
	switch e := ev.(type) {
	case ItemAdded:
		env.ItemType, env.Role, env.Status = e.ItemType, e.Role, e.Status
	case ItemDone:
		env.ItemType, env.Role, env.Status = e.ItemType, e.Role, e.Status
	case MessageDelta:
		env.ContentIndex, env.Delta = e.ContentIndex, e.Delta
	case RefusalDelta:
		env.ContentIndex, env.Delta = e.ContentIndex, e.Delta
	case RefusalDone:
		env.ContentIndex, env.Text = e.ContentIndex, e.Text
	case ReasoningDelta:
		env.Delta = e.Delta
	case ToolStatus:
		tool := e.Tool
		env.Tool = &tool
	case ToolArgsDelta:
		env.Delta = e.Delta
	case ToolArgsDone:
		env.Arguments = e.Arguments
	case ToolCodeDelta:
		env.Delta = e.Delta
	case ToolCodeDone:
		env.Code = e.Code
	case ToolOutput:
		env.Output, env.Error = e.Output, e.Error
	case ChunkDelta:
		env.EntityKind, env.EntityID, env.Field = e.EntityKind, e.EntityID, e.Field
		env.PartIndex, env.ChunkIndex = e.PartIndex, e.ChunkIndex
		env.Encoding, env.Data = e.Encoding, e.Data
	case ChunkDone:
		env.EntityKind, env.EntityID, env.Field = e.EntityKind, e.EntityID, e.Field
		env.PartIndex = e.PartIndex
	case Lifecycle:
		env.Status = e.Status
	case Final:
		env.Status = e.Status
	case RunError:
		env.Code, env.Message = e.Code, e.Message
	case Unknown:
		// header only
	default:
		return nil, fmt.Errorf("encode event: unsupported type %T", ev)
	}
	return json.Marshal(env)
}

// DecodeBatch parses either a JSON array of events or NDJSON, skipping
// blank lines. The first malformed entry fails the whole batch.
func DecodeBatch(data []byte) ([]Event, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var raws []json.RawMessage
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, fmt.Errorf("decode batch: %w", err)
		}
		events := make([]Event, 0, len(raws))
		for i, raw := range raws {
			ev, err := Decode(raw)
			if err != nil {
				return nil, fmt.Errorf("event %d: %w", i, err)
			}
			events = append(events, ev)
		}
		return events, nil
	}

	var events []Event
	sc := bufio.NewScanner(bytes.NewReader(trimmed))
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		ev, err := Decode(b)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}
	return events, nil
}
