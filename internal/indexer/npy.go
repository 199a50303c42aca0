package indexer

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WriteMatrix stores rows at path as .npy (float32, C order) or .json,
// following the extension. The file is written to a temporary name and
// renamed so readers never see a partial matrix.
func WriteMatrix(path string, rows [][]float32) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".npy" && ext != ".json" {
		return fmt.Errorf("unsupported embedding format %q", filepath.Ext(path))
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".embeddings-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if ext == ".npy" {
		err = writeNPY(w, rows)
	} else {
		err = json.NewEncoder(w).Encode(rows)
	}
	if err == nil {
		err = w.Flush()
	}
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return os.Rename(tmp.Name(), path)
}

// writeNPY emits a version 1.0 header for a 2-D little-endian float32 array.
func writeNPY(w *bufio.Writer, rows [][]float32) error {
	cols := 0
	if len(rows) > 0 {
		cols = len(rows[0])
	}
	header := fmt.Sprintf("{'descr': '<f4', 'fortran_order': False, 'shape': (%d, %d), }", len(rows), cols)
	// magic(6) + version(2) + length(2) + header + '\n' is a multiple of 64.
	if pad := (10 + len(header) + 1) % 64; pad != 0 {
		header += strings.Repeat(" ", 64-pad)
	}
	header += "\n"

	if _, err := w.WriteString("\x93NUMPY\x01\x00"); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(len(header))); err != nil {
		return err
	}
	if _, err := w.WriteString(header); err != nil {
		return err
	}
	for i, r := range rows {
		if len(r) != cols {
			return fmt.Errorf("row %d has %d columns, want %d", i, len(r), cols)
		}
		if err := binary.Write(w, binary.LittleEndian, r); err != nil {
			return err
		}
	}
	return nil
}
