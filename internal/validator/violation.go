package validator

import (
	"fmt"

	"github.com/vektah/gqlparser/v2/gqlerror"

	language "github.com/hanpama/ccn/internal/language"
)

type Violation struct {
	Message     string `json:"message"`
	Rule        string `json:"rule,omitempty"`
	ResponseKey string `json:"responseKey,omitempty"`
	File        string `json:"file,omitempty"`
	Line        int    `json:"line,omitempty"`
	Column      int    `json:"column,omitempty"`
}

type ValidationError []*Violation

func (e ValidationError) Error() string {
	msg := "violations found:\n"
	for _, v := range e {
		line := "- " + v.Message
		if v.Line > 0 {
			line += fmt.Sprintf(" %s:%d:%d", v.File, v.Line, v.Column)
		}
		msg += line + "\n"
	}
	return msg
}

// GQLErrors converts the violations into GraphQL response errors.
func (e ValidationError) GQLErrors() gqlerror.List {
	out := make(gqlerror.List, 0, len(e))
	for _, v := range e {
		ge := &gqlerror.Error{Message: v.Message, Rule: v.Rule}
		if v.Line > 0 {
			ge.Locations = []gqlerror.Location{{Line: v.Line, Column: v.Column}}
		}
		if v.Rule != "" || v.ResponseKey != "" {
			ge.Extensions = map[string]any{}
			if v.Rule != "" {
				ge.Extensions["rule"] = v.Rule
			}
			if v.ResponseKey != "" {
				ge.Extensions["responseKey"] = v.ResponseKey
			}
		}
		out = append(out, ge)
	}
	return out
}

// Core primitive used by all template helpers.
func violationWithPosition(rule, message string, pos *language.Position) *Violation {
	v := &Violation{Message: message, Rule: rule}
	if pos != nil {
		v.Line = pos.Line
		v.Column = pos.Column
		if pos.Src != nil {
			v.File = pos.Src.Name
		}
	}
	return v
}

// fromGQLError converts a parser or standard-rule error.
func fromGQLError(err *gqlerror.Error, file string) *Violation {
	v := &Violation{Message: err.Message, Rule: err.Rule, File: file}
	if v.Rule == "" {
		v.Rule = RuleSyntax
	}
	if len(err.Locations) > 0 {
		v.Line = err.Locations[0].Line
		v.Column = err.Locations[0].Column
	}
	return v
}

func fromGQLErrors(list gqlerror.List, file string) ValidationError {
	out := make(ValidationError, 0, len(list))
	for _, err := range list {
		out = append(out, fromGQLError(err, file))
	}
	return out
}
