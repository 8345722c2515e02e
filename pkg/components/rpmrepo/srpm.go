package rpmrepo

import "strings"

// parseSRPMName extracts the package name from a source RPM filename, e.g.
// "bash-5.2.15-5.fc40.src.rpm" -> "bash", "python-dateutil-2.8.2-1.fc40.src.rpm"
// -> "python-dateutil". Falls back to the input unchanged when it doesn't
// look like a full N-V-R.
func parseSRPMName(srpm string) string {
	withoutSuffix := strings.TrimSuffix(srpm, ".src.rpm")

	parts := rSplitN(withoutSuffix, '-', 3)
	if len(parts) == 3 {
		return parts[2]
	}
	return withoutSuffix
}

// rSplitN splits s on sep from the right, producing at most n pieces,
// ordered rightmost-segment-first then the leftover prefix last — the same
// order as Rust's str::rsplitn(n, pat).collect::<Vec<_>>().
func rSplitN(s string, sep byte, n int) []string {
	if n <= 0 {
		return nil
	}
	pieces := make([]string, 0, n)
	rest := s
	for len(pieces) < n-1 {
		idx := strings.LastIndexByte(rest, sep)
		if idx < 0 {
			break
		}
		pieces = append(pieces, rest[idx+1:])
		rest = rest[:idx]
	}
	pieces = append(pieces, rest)
	return pieces
}
