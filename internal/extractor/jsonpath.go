package extractor

// normalizePath converts "$.field" and bare "$" into gjson syntax.
func normalizePath(path string) string {
	if len(path) > 0 && path[0] == '$' {
		if len(path) > 1 && path[1] == '.' {
			return path[2:]
		} else if len(path) == 1 {
			// Bare "$" means entire JSON - use @this in gjson
			return "@this"
		}
	}
	if path == "" {
		return "@this"
	}
	return path
}
