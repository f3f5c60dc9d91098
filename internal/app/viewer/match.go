package viewer

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gobwas/glob"

	"logview/internal/app/errors"
	"logview/internal/app/instances"
)

// Matcher selects instances by name; a pattern starting with ! excludes
type Matcher interface {
	Match(inst *instances.Instance) bool
}

// matcher implements the Matcher interface
type matcher struct {
	patterns []glob.Glob
	ignores  []glob.Glob
}

// NewMatcher compiles include and ! exclude patterns matched against instance names and labels
func NewMatcher(patterns ...string) (Matcher, error) {
	m := &matcher{
		patterns: make([]glob.Glob, 0, len(patterns)),
	}

	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}

		ignore := strings.HasPrefix(p, "!")

		g, err := glob.Compile(strings.TrimPrefix(p, "!"))
		if err != nil {
			return nil, fmt.Errorf("%w '%s': %w", errors.ErrInvalidPattern, p, err)
		}

		if ignore {
			m.ignores = append(m.ignores, g)
		} else {
			m.patterns = append(m.patterns, g)
		}
	}

	return m, nil
}

// Match returns true if the instance matches any include and no exclude; ghosts never match
func (m *matcher) Match(inst *instances.Instance) bool {
	if inst.Ghost {
		return false
	}

	keys := []string{inst.Name, inst.Label(), inst.ID}

	for _, ignore := range m.ignores {
		if matchAny(ignore, keys) {
			return false
		}
	}

	if len(m.patterns) == 0 {
		return true
	}

	for _, pattern := range m.patterns {
		if matchAny(pattern, keys) {
			return true
		}
	}

	return false
}

func matchAny(g glob.Glob, keys []string) bool {
	for _, k := range keys {
		if g.Match(k) {
			return true
		}
	}

	return false
}

// MatchInstances returns the ids of loaded instances selected by the patterns
func (v *Viewer) MatchInstances(patterns ...string) ([]string, error) {
	m, err := NewMatcher(patterns...)
	if err != nil {
		return nil, err
	}

	var out []string

	for _, inst := range v.manager.Instances() {
		if m.Match(inst) {
			out = append(out, inst.ID)
		}
	}

	return out, nil
}

// SetFilter restricts later loads to instances matching the patterns; no pattern removes the filter.
// Deployment loads keep only matching instances, range loads add them to the explicit selection.
func (v *Viewer) SetFilter(patterns ...string) error {
	var m Matcher

	if len(patterns) > 0 {
		var err error

		m, err = NewMatcher(patterns...)
		if err != nil {
			return err
		}
	}

	v.mu.Lock()
	v.filter = m
	v.mu.Unlock()

	return nil
}

// filterList keeps the instances the filter matches
func (v *Viewer) filterList(list []*instances.Instance) ([]*instances.Instance, error) {
	v.mu.Lock()
	m := v.filter
	v.mu.Unlock()

	if m == nil {
		return list, nil
	}

	out := make([]*instances.Instance, 0, len(list))

	for _, inst := range list {
		if m.Match(inst) {
			out = append(out, inst)
		}
	}

	if len(out) == 0 {
		return nil, errors.ErrNoMatchingInstance
	}

	return out, nil
}

// filterSelection adds the known instances the filter matches to an explicit selection
func (v *Viewer) filterSelection(selection []string) ([]string, error) {
	v.mu.Lock()
	m := v.filter
	v.mu.Unlock()

	if m == nil {
		return selection, nil
	}

	out := slices.Clone(selection)

	for _, inst := range v.manager.Instances() {
		if m.Match(inst) && !slices.Contains(out, inst.ID) {
			out = append(out, inst.ID)
		}
	}

	if len(out) == 0 {
		return nil, errors.ErrNoMatchingInstance
	}

	return out, nil
}
