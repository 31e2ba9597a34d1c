// Package codec implements the versioned wire format for steps,
// transactions and state snapshots. The format is a structured JSON
// envelope carrying an explicit "v" field, so consumers (undo history,
// persistence, sync transports) can reject formats they do not understand
// instead of misreading them.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/tree"
)

// FormatVersion is the current wire format version.
const FormatVersion = 1

// ErrUnsupportedFormat is returned when an envelope carries an unknown
// format version.
var ErrUnsupportedFormat = errors.New("unsupported wire format version")

// ErrUnknownStep is returned when decoding an unrecognized step type.
var ErrUnknownStep = errors.New("unknown step type")

type attrDTO struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

type markDTO struct {
	Type  string    `json:"type"`
	Attrs []attrDTO `json:"attrs,omitempty"`
}

type nodeDTO struct {
	ID      tree.NodeID   `json:"id"`
	Type    string        `json:"type"`
	Attrs   []attrDTO     `json:"attrs,omitempty"`
	Marks   []markDTO     `json:"marks,omitempty"`
	Content []tree.NodeID `json:"content,omitempty"`
	Text    string        `json:"text,omitempty"`
}

type stepDTO struct {
	Type   string      `json:"type"`
	Parent tree.NodeID `json:"parent,omitempty"`
	Node   *nodeDTO    `json:"node,omitempty"`
	Pos    int         `json:"pos,omitempty"`
	ID     tree.NodeID `json:"id,omitempty"`
	Set    []attrDTO   `json:"set,omitempty"`
	Unset  []string    `json:"unset,omitempty"`
	Mark   *markDTO    `json:"mark,omitempty"`
	Steps  []stepDTO   `json:"steps,omitempty"`
}

type stepEnvelope struct {
	V    int     `json:"v"`
	Step stepDTO `json:"step"`
}

type txEnvelope struct {
	V           int            `json:"v"`
	ID          string         `json:"id"`
	BaseVersion uint64         `json:"base_version"`
	Meta        map[string]any `json:"meta,omitempty"`
	Steps       []stepDTO      `json:"steps"`
}

// EncodeStep serializes a single step.
func EncodeStep(step domain.Step) ([]byte, error) {
	dto, err := toStepDTO(step)
	if err != nil {
		return nil, err
	}
	return json.Marshal(stepEnvelope{V: FormatVersion, Step: dto})
}

// DecodeStep deserializes a single step. Numeric attribute values decode as
// json.Number, so integers survive the round trip undamaged.
func DecodeStep(data []byte) (domain.Step, error) {
	var env stepEnvelope
	if err := decodeStrictNumbers(data, &env); err != nil {
		return nil, fmt.Errorf("decode step: %w", err)
	}
	if env.V != FormatVersion {
		return nil, fmt.Errorf("decode step: v%d: %w", env.V, ErrUnsupportedFormat)
	}
	return fromStepDTO(env.Step)
}

// EncodeTransaction serializes a committed transaction.
func EncodeTransaction(tx *domain.Transaction) ([]byte, error) {
	if !tx.Committed() {
		return nil, domain.ErrTransactionOpen
	}
	steps := make([]stepDTO, len(tx.Steps))
	for i, step := range tx.Steps {
		dto, err := toStepDTO(step)
		if err != nil {
			return nil, fmt.Errorf("encode transaction %s: %w", tx.ID, err)
		}
		steps[i] = dto
	}
	meta := tx.Meta
	if len(meta) == 0 {
		meta = nil
	}
	return json.Marshal(txEnvelope{
		V:           FormatVersion,
		ID:          tx.ID,
		BaseVersion: tx.BaseVersion,
		Meta:        meta,
		Steps:       steps,
	})
}

// DecodeTransaction deserializes a transaction. The result is committed
// and immutable, like the transaction that was encoded.
func DecodeTransaction(data []byte) (*domain.Transaction, error) {
	var env txEnvelope
	if err := decodeStrictNumbers(data, &env); err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	if env.V != FormatVersion {
		return nil, fmt.Errorf("decode transaction %s: v%d: %w", env.ID, env.V, ErrUnsupportedFormat)
	}
	steps := make([]domain.Step, len(env.Steps))
	for i, dto := range env.Steps {
		step, err := fromStepDTO(dto)
		if err != nil {
			return nil, fmt.Errorf("decode transaction %s: %w", env.ID, err)
		}
		steps[i] = step
	}
	return domain.Sealed(env.ID, env.BaseVersion, steps, env.Meta), nil
}

// decodeStrictNumbers unmarshals with json.Number instead of float64 so
// large integers keep their exact value.
func decodeStrictNumbers(data []byte, target any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(target)
}

func toStepDTO(step domain.Step) (stepDTO, error) {
	switch s := step.(type) {
	case *domain.AddNodeStep:
		node := toNodeDTO(s.Node)
		return stepDTO{Type: string(domain.StepAddNode), Parent: s.Parent, Node: &node, Pos: s.Pos}, nil
	case *domain.RemoveNodeStep:
		return stepDTO{Type: string(domain.StepRemoveNode), ID: s.ID}, nil
	case *domain.SetAttrStep:
		return stepDTO{Type: string(domain.StepSetAttr), ID: s.ID, Set: toAttrDTOs(s.Set), Unset: s.Unset}, nil
	case *domain.AddMarkStep:
		mark := toMarkDTO(s.Mark)
		return stepDTO{Type: string(domain.StepAddMark), ID: s.ID, Mark: &mark}, nil
	case *domain.RemoveMarkStep:
		mark := toMarkDTO(s.Mark)
		return stepDTO{Type: string(domain.StepRemoveMark), ID: s.ID, Mark: &mark}, nil
	case *domain.BatchStep:
		steps := make([]stepDTO, len(s.Steps))
		for i, sub := range s.Steps {
			dto, err := toStepDTO(sub)
			if err != nil {
				return stepDTO{}, err
			}
			steps[i] = dto
		}
		return stepDTO{Type: string(domain.StepBatch), Steps: steps}, nil
	default:
		return stepDTO{}, fmt.Errorf("step %T: %w", step, ErrUnknownStep)
	}
}

func fromStepDTO(dto stepDTO) (domain.Step, error) {
	switch domain.StepKind(dto.Type) {
	case domain.StepAddNode:
		if dto.Node == nil {
			return nil, fmt.Errorf("add_node without node: %w", ErrUnknownStep)
		}
		return &domain.AddNodeStep{Parent: dto.Parent, Node: fromNodeDTO(*dto.Node), Pos: dto.Pos}, nil
	case domain.StepRemoveNode:
		return &domain.RemoveNodeStep{ID: dto.ID}, nil
	case domain.StepSetAttr:
		return &domain.SetAttrStep{ID: dto.ID, Set: fromAttrDTOs(dto.Set), Unset: dto.Unset}, nil
	case domain.StepAddMark:
		if dto.Mark == nil {
			return nil, fmt.Errorf("add_mark without mark: %w", ErrUnknownStep)
		}
		return &domain.AddMarkStep{ID: dto.ID, Mark: fromMarkDTO(*dto.Mark)}, nil
	case domain.StepRemoveMark:
		if dto.Mark == nil {
			return nil, fmt.Errorf("remove_mark without mark: %w", ErrUnknownStep)
		}
		return &domain.RemoveMarkStep{ID: dto.ID, Mark: fromMarkDTO(*dto.Mark)}, nil
	case domain.StepBatch:
		steps := make([]domain.Step, len(dto.Steps))
		for i, sub := range dto.Steps {
			step, err := fromStepDTO(sub)
			if err != nil {
				return nil, err
			}
			steps[i] = step
		}
		return &domain.BatchStep{Steps: steps}, nil
	default:
		return nil, fmt.Errorf("step type %q: %w", dto.Type, ErrUnknownStep)
	}
}

func toAttrDTOs(attrs tree.Attrs) []attrDTO {
	if len(attrs) == 0 {
		return nil
	}
	out := make([]attrDTO, len(attrs))
	for i, attr := range attrs {
		out[i] = attrDTO{Name: attr.Name, Value: attr.Value}
	}
	return out
}

func fromAttrDTOs(dtos []attrDTO) tree.Attrs {
	if len(dtos) == 0 {
		return nil
	}
	out := make(tree.Attrs, len(dtos))
	for i, dto := range dtos {
		out[i] = tree.Attr{Name: dto.Name, Value: dto.Value}
	}
	return out
}

func toMarkDTO(m tree.Mark) markDTO {
	return markDTO{Type: m.Type, Attrs: toAttrDTOs(m.Attrs)}
}

func fromMarkDTO(dto markDTO) tree.Mark {
	return tree.Mark{Type: dto.Type, Attrs: fromAttrDTOs(dto.Attrs)}
}

func toNodeDTO(n tree.Node) nodeDTO {
	marks := make([]markDTO, len(n.Marks))
	for i, m := range n.Marks {
		marks[i] = toMarkDTO(m)
	}
	if len(marks) == 0 {
		marks = nil
	}
	return nodeDTO{
		ID:      n.ID,
		Type:    n.Type,
		Attrs:   toAttrDTOs(n.Attrs),
		Marks:   marks,
		Content: n.Content,
		Text:    n.Text,
	}
}

func fromNodeDTO(dto nodeDTO) tree.Node {
	var marks tree.Marks
	for _, m := range dto.Marks {
		marks = marks.With(fromMarkDTO(m))
	}
	return tree.Node{
		ID:      dto.ID,
		Type:    dto.Type,
		Attrs:   fromAttrDTOs(dto.Attrs),
		Marks:   marks,
		Content: dto.Content,
		Text:    dto.Text,
	}
}
