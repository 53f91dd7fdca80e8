package lang

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"

	"github.com/gertd/go-pluralize"
)

const (
	DefaultPattern   = "%s"
	DefaultSeparator = ","
	DefaultOperator  = "and"
)

var (
	pluralizer = pluralize.NewClient()
)

type Enumerator struct {
	Pattern   string
	Separator string
	Operator  string
}

func (e Enumerator) Do(elements ...string) string {
	pattern, separator, operator := DefaultPattern, DefaultSeparator, DefaultOperator
	if e.Pattern != "" {
		pattern = e.Pattern
	}
	if e.Separator != "" {
		separator = e.Separator
	}
	if e.Operator != "" {
		operator = e.Operator
	}
	res := &bytes.Buffer{}
	for idx, element := range elements {
		if idx+2 < len(elements) {
			fmt.Fprintf(res, fmt.Sprintf("%s%%s ", pattern), element, separator)
		} else if idx+1 < len(elements) {
			if len(elements) > 2 {
				fmt.Fprintf(res, fmt.Sprintf("%s%%s %%s ", pattern), element, separator, operator)
			} else {
				fmt.Fprintf(res, fmt.Sprintf("%s %%s ", pattern), element, operator)
			}
		} else {
			fmt.Fprintf(res, pattern, element)
		}
	}
	return res.String()
}

func Plural(word string) string {
	return pluralizer.Plural(word)
}

func Singular(word string) string {
	return pluralizer.Singular(word)
}

// Card returns "no words", "one word", "two words" and so on.
func Card(count int, word string) string {
	switch count {
	case 0:
		return "no " + Plural(word)
	case 1:
		return "one " + Singular(word)
	}
	return pluralizer.Pluralize(word, count, true)
}

func Capitalize(s string) string {
	for idx, r := range s {
		return string(unicode.ToUpper(r)) + s[idx+len(string(r)):]
	}
	return s
}

// Possessive returns "name's", or "name'" for names ending in s.
func Possessive(name string) string {
	if name == "" {
		return ""
	}
	if strings.HasSuffix(strings.ToLower(name), "s") {
		return name + "'"
	}
	return name + "'s"
}
