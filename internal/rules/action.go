package rules

import (
	"strings"
	"syncademic/internal/apperr"
	"syncademic/internal/models"
	"unicode/utf8"
)

// MaxActionText bounds the value of a ChangeFieldAction.
const MaxActionText = 1024

// Method is the way a ChangeFieldAction rewrites its field.
type Method string

const (
	MethodSet       Method = "set"
	MethodAppend    Method = "append"
	MethodPrepend   Method = "prepend"
	MethodCutBefore Method = "cut-before"
	MethodCutAfter  Method = "cut-after"
)

func (m Method) IsValid() bool {
	switch m {
	case MethodSet, MethodAppend, MethodPrepend, MethodCutBefore, MethodCutAfter:
		return true
	}
	return false
}

// Action transforms an event. Apply returns false when the event is dropped.
type Action interface {
	Apply(ev models.Event) (models.Event, bool)
}

// ChangeFieldAction rewrites one text field.
type ChangeFieldAction struct {
	Field  models.Field
	Method Method
	Value  string
}

func NewChangeFieldAction(field models.Field, method Method, value string) (*ChangeFieldAction, error) {
	if !field.IsValid() {
		return nil, apperr.New(apperr.RulesetValidation, "unknown field %q", field)
	}
	if !method.IsValid() {
		return nil, apperr.New(apperr.RulesetValidation, "unknown method %q", method)
	}
	if utf8.RuneCountInString(value) > MaxActionText {
		return nil, apperr.New(apperr.RulesetValidation, "action value longer than %d characters", MaxActionText)
	}
	if value == "" && (method == MethodCutBefore || method == MethodCutAfter) {
		return nil, apperr.New(apperr.RulesetValidation, "%s needs a non-empty value", method)
	}
	return &ChangeFieldAction{Field: field, Method: method, Value: value}, nil
}

func (a *ChangeFieldAction) Apply(ev models.Event) (models.Event, bool) {
	current := ev.Field(a.Field)
	var next string
	switch a.Method {
	case MethodSet:
		next = a.Value
	case MethodAppend:
		next = current + a.Value
	case MethodPrepend:
		next = a.Value + current
	case MethodCutBefore:
		next = current
		if _, after, found := strings.Cut(current, a.Value); found {
			next = after
		}
	case MethodCutAfter:
		next = current
		if before, _, found := strings.Cut(current, a.Value); found {
			next = before
		}
	}
	return ev.WithField(a.Field, next), true
}

// ChangeColorAction recolors the event.
type ChangeColorAction struct {
	Color models.Color
}

func NewChangeColorAction(c models.Color) (*ChangeColorAction, error) {
	if !c.IsValid() {
		return nil, apperr.New(apperr.RulesetValidation, "unknown color %q", c)
	}
	return &ChangeColorAction{Color: c}, nil
}

func (a *ChangeColorAction) Apply(ev models.Event) (models.Event, bool) {
	return ev.WithColor(a.Color), true
}

// DeleteEventAction drops the event.
type DeleteEventAction struct{}

func (DeleteEventAction) Apply(ev models.Event) (models.Event, bool) {
	return models.Event{}, false
}
