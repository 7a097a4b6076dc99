package engine

// MissingScopes returns the required scopes not present in the provided
// set. The result preserves the order of required, so failure reasons are
// stable across runs.
func MissingScopes(provided, required []string) []string {
	if len(required) == 0 {
		return nil
	}
	have := make(map[string]struct{}, len(provided))
	for _, s := range provided {
		have[s] = struct{}{}
	}
	var missing []string
	for _, s := range required {
		if _, ok := have[s]; !ok {
			missing = append(missing, s)
		}
	}
	return missing
}
