// Package scan derives injection policies from struct metadata.
//
// Fields carrying an `inject` tag become properties of the owning type:
//
//	type Service struct {
//	    Logger  Logger   `inject:""`
//	    Cache   Cache    `inject:"optional"`
//	    FileLog Logger   `inject:"name=file"`
//	    DSN     string   `inject:"lookup=dsn"`
//	    Proto   *Request `inject:"clone,lookup=request"`
//	    Ignored Logger   `inject:"-"`
//	}
package scan

import (
	"fmt"
	"strings"

	"github.com/toutaio/toutago-nasc-builder/parameter"
)

// TagName is the struct tag read by the scanner.
const TagName = "inject"

// tagOptions represents parsed options from an inject tag.
type tagOptions struct {
	skip     bool
	optional bool
	clone    bool
	name     string
	lookup   string
	hasName  bool
	hasLook  bool
}

// parseTag parses an inject struct tag.
// Supported formats:
//   - `inject:""` builds the field type
//   - `inject:"name=foo"` builds the named field type
//   - `inject:"lookup=foo"` reads the locator entry foo
//   - `inject:"optional"` leaves the field zero when the dependency is missing
//   - `inject:"clone"` clones the resolved value
//   - `inject:"-"` skips the field
//
// Options combine with commas. Naming both a build name and a lookup key,
// repeating an option, or combining "-" with anything is an error.
func parseTag(tag string) (tagOptions, error) {
	opts := tagOptions{}
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return opts, nil
	}
	if tag == "-" {
		opts.skip = true
		return opts, nil
	}

	seen := map[string]bool{}
	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		option, value, hasValue := strings.Cut(part, "=")
		if seen[option] {
			return opts, fmt.Errorf("option %q repeated", option)
		}
		seen[option] = true

		switch {
		case part == "":
			return opts, fmt.Errorf("empty option")
		case part == "-":
			return opts, fmt.Errorf(`"-" cannot be combined with other options`)
		case part == "optional":
			opts.optional = true
		case part == "clone":
			opts.clone = true
		case hasValue && option == "name":
			opts.name, opts.hasName = value, true
		case hasValue && option == "lookup":
			if value == "" {
				return opts, fmt.Errorf("lookup key cannot be empty")
			}
			opts.lookup, opts.hasLook = value, true
		default:
			return opts, fmt.Errorf("unknown option %q", part)
		}
	}
	if opts.hasName && opts.hasLook {
		return opts, fmt.Errorf("name and lookup are conflicting sources")
	}
	return opts, nil
}

// param wraps build, or the lookup named by the tag, with the clone and
// optional modifiers.
func (opts tagOptions) param(build parameter.Parameter) parameter.Parameter {
	var p parameter.Parameter
	if opts.hasLook {
		p = parameter.Lookup(opts.lookup)
	} else {
		p = build
	}
	if opts.clone {
		p = parameter.Clone(p)
	}
	if opts.optional {
		p = parameter.Optional(p)
	}
	return p
}
