package alpmrepo

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/chunkah/chunkah/pkg/rootfs"
)

var gzipMagic = []byte{0x1f, 0x8b}

// mtreeEntry is one parsed line of a pacman v2 mtree manifest: an absolute
// path and the file type libarchive's mtree dialect encodes in its
// "type=" keyword.
type mtreeEntry struct {
	Path string
	Type rootfs.FileType
}

// decodeMtree transparently gunzips content whose first two bytes are the
// gzip magic, then decodes it as UTF-8 text. Older pacman releases ship
// mtree files gzip-compressed; newer ones do not, so the magic bytes are
// the only reliable signal.
func decodeMtree(content []byte) ([]byte, error) {
	if len(content) >= 2 && content[0] == gzipMagic[0] && content[1] == gzipMagic[1] {
		gr, err := gzip.NewReader(strings.NewReader(string(content)))
		if err != nil {
			return nil, fmt.Errorf("opening gzip mtree: %w", err)
		}
		defer gr.Close()

		var out []byte
		buf := make([]byte, 32*1024)
		for {
			n, err := gr.Read(buf)
			if n > 0 {
				out = append(out, buf[:n]...)
			}
			if err != nil {
				break
			}
		}
		content = out
	}

	if !utf8.Valid(content) {
		return nil, fmt.Errorf("mtree content is not valid utf-8")
	}
	return content, nil
}

// parseMtree parses a pacman v2 mtree manifest (the libarchive mtree
// dialect) into a flat list of path/type pairs. Each non-comment,
// non-empty line looks like:
//
//	./usr/bin/bash type=file uid=0 gid=0 mode=755 size=1234 time=...
//	./usr/lib type=dir uid=0 gid=0 mode=755 time=...
//	./usr/bin/sh type=link uid=0 gid=0 mode=777 time=... link=bash
//
// Lines starting with "#" are comments (including the mandatory leading
// "#mtree" signature) and are skipped. A "/set" line establishes keyword
// defaults (most commonly "type") that apply to every entry line until the
// next "/set" or "/unset" — real pacman archives set "type=file" once up
// front and then omit it from every regular-file line that follows, so an
// entry line without its own "type=" keyword inherits the current default
// rather than being dropped.
func parseMtree(content string) ([]mtreeEntry, error) {
	var entries []mtreeEntry
	defaults := map[string]string{}

	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		if fields[0] == "/set" {
			applyKeywords(defaults, fields[1:])
			continue
		}
		if fields[0] == "/unset" {
			for _, k := range fields[1:] {
				delete(defaults, k)
			}
			continue
		}
		if strings.HasPrefix(fields[0], "/") {
			continue
		}

		rawPath := fields[0]
		keywords := map[string]string{}
		for k, v := range defaults {
			keywords[k] = v
		}
		applyKeywords(keywords, fields[1:])

		ftype, ok := fileTypeFromKeyword(keywords["type"])
		if !ok {
			continue
		}

		normalized := strings.TrimPrefix(rawPath, "./")
		absPath := path.Join("/", normalized)
		entries = append(entries, mtreeEntry{Path: absPath, Type: ftype})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning mtree file: %w", err)
	}
	return entries, nil
}

// applyKeywords merges "key=value" fields into dst, ignoring anything that
// isn't a keyword assignment.
func applyKeywords(dst map[string]string, fields []string) {
	for _, kv := range fields {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		dst[k] = v
	}
}

func fileTypeFromKeyword(v string) (rootfs.FileType, bool) {
	switch v {
	case "dir":
		return rootfs.FileTypeDirectory, true
	case "file":
		return rootfs.FileTypeFile, true
	case "link":
		return rootfs.FileTypeSymlink, true
	default:
		return 0, false
	}
}
