package alpmrepo

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// descInfo is the subset of a pacman local-database "desc" file this
// backend needs: the package base name (which subpackages of one build
// share) and the build timestamp.
type descInfo struct {
	Base      string
	BuildDate uint64
}

// parseDesc parses a pacman "desc" file, a sequence of blocks of the form:
//
//	%FIELD%
//	value
//	value...
//	<blank line>
//
// Only %BASE% and %BUILDDATE% are extracted; %BASE% falls back to %NAME%
// when a package has no explicit base (common for packages that aren't
// split from a multi-output build).
func parseDesc(content string) (descInfo, error) {
	var info descInfo
	var name string

	scanner := bufio.NewScanner(strings.NewReader(content))
	var field string
	var values []string

	flush := func() {
		switch field {
		case "NAME":
			if len(values) > 0 {
				name = values[0]
			}
		case "BASE":
			if len(values) > 0 {
				info.Base = values[0]
			}
		case "BUILDDATE":
			if len(values) > 0 {
				if n, err := strconv.ParseUint(values[0], 10, 64); err == nil {
					info.BuildDate = n
				}
			}
		}
		field = ""
		values = nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "%") && strings.HasSuffix(line, "%") && len(line) > 1:
			flush()
			field = strings.Trim(line, "%")
		case line == "":
			flush()
		default:
			values = append(values, line)
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return descInfo{}, fmt.Errorf("scanning desc file: %w", err)
	}

	if info.Base == "" {
		info.Base = name
	}
	if info.Base == "" {
		return descInfo{}, fmt.Errorf("desc file has neither %%BASE%% nor %%NAME%%")
	}
	return info, nil
}
