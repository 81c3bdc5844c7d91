package filter

import "regexp"

// IsRestricted reports whether the path is restricted for the role. Rules
// are consulted in registration order; the first rule whose pattern
// matches the path and does not permit the role wins and evaluation
// stops. A rule that permits the role does not end evaluation — a later
// pattern may still restrict it. A path no rule restricts is allowed.
func (f *Filter) IsRestricted(path, role string) (bool, error) {
	restricted, _, err := f.isRestricted(f.snap.Load(), path, role)
	return restricted, err
}

// isRestricted evaluates a single snapshot. Returns the restricting
// pattern when the path is restricted.
func (f *Filter) isRestricted(snap *snapshot, path, role string) (bool, string, error) {
	for _, rule := range snap.rules {
		re, err := f.compile(rule.Pattern)
		if err != nil {
			return false, "", err
		}
		if !re.MatchString(path) {
			continue
		}
		if !rule.permits(role) {
			return true, rule.Pattern, nil
		}
	}
	return false, "", nil
}

// compile returns the compiled regex for a pattern, caching it for
// reuse. Compile failures surface as *PatternError.
func (f *Filter) compile(pattern string) (*regexp.Regexp, error) {
	f.regexMu.RLock()
	re, ok := f.regexes[pattern]
	f.regexMu.RUnlock()

	if ok {
		return re, nil
	}

	f.regexMu.Lock()
	defer f.regexMu.Unlock()

	// Double-check after acquiring the write lock.
	if re, ok := f.regexes[pattern]; ok {
		return re, nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, &PatternError{Pattern: pattern, Err: err}
	}

	f.regexes[pattern] = re
	return re, nil
}
