package ociimage

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"
)

var epoch = time.Unix(0, 0).UTC()

const (
	outerDirMode  = 0o755
	outerFileMode = 0o644
)

// WriteArchive walks the OCI layout directory at dir, sorted by filename at
// every level, and serializes it as a single tar stream (optionally
// gzip-wrapped) with fixed ownership, timestamps, and permissions so the
// archive's bytes depend only on the layout's content, never on the
// filesystem that produced it.
func WriteArchive(dir string, w io.Writer, compression Compression) error {
	if compression.Enabled {
		// Level 0 is compress/gzip's NoCompression, not "unset" — the CLI
		// flag always carries an explicit default, so 0 here means the
		// caller asked to store the archive uncompressed.
		gw, err := gzip.NewWriterLevel(w, compression.Level)
		if err != nil {
			return fmt.Errorf("creating gzip writer: %w", err)
		}
		defer gw.Close()
		w = gw
	}

	tw := tar.NewWriter(w)
	if err := walkDir(tw, dir, ""); err != nil {
		return err
	}
	return tw.Close()
}

func walkDir(tw *tar.Writer, root, relDir string) error {
	absDir := filepath.Join(root, relDir)
	entries, err := os.ReadDir(absDir)
	if err != nil {
		return fmt.Errorf("reading directory %s: %w", absDir, err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		relPath := filepath.Join(relDir, entry.Name())
		tarPath := filepath.ToSlash(relPath)

		switch {
		case entry.IsDir():
			hdr := &tar.Header{
				Typeflag: tar.TypeDir,
				Name:     tarPath + "/",
				Mode:     outerDirMode,
				ModTime:  epoch,
			}
			if err := tw.WriteHeader(hdr); err != nil {
				return fmt.Errorf("writing directory entry %s: %w", tarPath, err)
			}
			if err := walkDir(tw, root, relPath); err != nil {
				return err
			}
		case entry.Type().IsRegular():
			if err := writeOuterFile(tw, filepath.Join(root, relPath), tarPath); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unsupported file type for %s", tarPath)
		}
	}
	return nil
}

func writeOuterFile(tw *tar.Writer, absPath, tarPath string) error {
	content, err := os.ReadFile(absPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", absPath, err)
	}

	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     tarPath,
		Mode:     outerFileMode,
		Size:     int64(len(content)),
		ModTime:  epoch,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("writing file entry %s: %w", tarPath, err)
	}
	_, err = tw.Write(content)
	return err
}
