package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Answer validation errors.
var (
	ErrAnswerEmpty        = errors.New("answer value is empty")
	ErrAnswerKindMismatch = errors.New("answer value does not match the question kind")
	ErrOptionOutOfRange   = errors.New("selected option is out of range")
)

type answerKind uint8

const (
	answerNone answerKind = iota
	answerOption
	answerBool
)

// AnswerValue is either a selected option index (single-choice) or a boolean (true-false).
// On the wire it is a JSON number or boolean; the strings "2", "true" and "false" are
// accepted as well since radio inputs post their values as text.
type AnswerValue struct {
	kind   answerKind
	option int
	truth  bool
}

// OptionAnswer builds a single-choice answer.
func OptionAnswer(index int) AnswerValue {
	return AnswerValue{kind: answerOption, option: index}
}

// BoolAnswer builds a true-false answer.
func BoolAnswer(v bool) AnswerValue {
	return AnswerValue{kind: answerBool, truth: v}
}

func (v AnswerValue) IsZero() bool { return v.kind == answerNone }

// Option returns the option index and whether v is an option answer.
func (v AnswerValue) Option() (int, bool) { return v.option, v.kind == answerOption }

// Bool returns the boolean and whether v is a true-false answer.
func (v AnswerValue) Bool() (bool, bool) { return v.truth, v.kind == answerBool }

// String is the canonical form stored in the answer key and the answers table.
func (v AnswerValue) String() string {
	switch v.kind {
	case answerOption:
		return strconv.Itoa(v.option)
	case answerBool:
		return strconv.FormatBool(v.truth)
	default:
		return ""
	}
}

// ParseAnswerValue parses the canonical string form.
func ParseAnswerValue(s string) (AnswerValue, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "":
		return AnswerValue{}, ErrAnswerEmpty
	case "true":
		return BoolAnswer(true), nil
	case "false":
		return BoolAnswer(false), nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return AnswerValue{}, fmt.Errorf("parse answer %q: %w", s, ErrAnswerKindMismatch)
	}
	return OptionAnswer(n), nil
}

func (v AnswerValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case answerOption:
		return []byte(strconv.Itoa(v.option)), nil
	case answerBool:
		return []byte(strconv.FormatBool(v.truth)), nil
	default:
		return []byte("null"), nil
	}
}

func (v *AnswerValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = AnswerValue{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParseAnswerValue(s)
		if err != nil {
			return err
		}
		*v = parsed
		return nil
	}
	parsed, err := ParseAnswerValue(string(data))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// checkAnswer validates v against a question of the given kind and option count.
func checkAnswer(kind QuestionKind, optionCount int, v AnswerValue) error {
	switch kind {
	case QuestionKindSingleChoice:
		idx, ok := v.Option()
		if !ok {
			return ErrAnswerKindMismatch
		}
		if idx < 0 || idx >= optionCount {
			return ErrOptionOutOfRange
		}
		return nil
	case QuestionKindTrueFalse:
		if _, ok := v.Bool(); !ok {
			return ErrAnswerKindMismatch
		}
		return nil
	default:
		return fmt.Errorf("unknown question kind %q", kind)
	}
}
