package corpus

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sbinet/npyio"
	"github.com/seanblong/projectsearch/pkg/models"
)

// projectRecord is the on-disk project shape; the long description is
// stored as full_desc by the corpus builder.
type projectRecord struct {
	ID       *int   `json:"id"`
	Name     string `json:"name"`
	Company  string `json:"company"`
	FullDesc string `json:"full_desc"`
}

type chunkRecord struct {
	ProjectID *int   `json:"project_id"`
	Content   string `json:"content"`
}

func readProjects(path string) ([]models.Project, error) {
	var recs []projectRecord
	if err := readJSON(path, &recs); err != nil {
		return nil, err
	}
	out := make([]models.Project, len(recs))
	for i, r := range recs {
		if r.ID == nil {
			return nil, fmt.Errorf("%w: %s: project %d has no id", ErrInvalidCorpus, path, i)
		}
		out[i] = models.Project{
			ID:          *r.ID,
			Name:        r.Name,
			Company:     r.Company,
			Description: r.FullDesc,
		}
	}
	return out, nil
}

// ReadChunks decodes the chunk list in file order.
func ReadChunks(path string) ([]models.Chunk, error) {
	var recs []chunkRecord
	if err := readJSON(path, &recs); err != nil {
		return nil, err
	}
	out := make([]models.Chunk, len(recs))
	for i, r := range recs {
		if r.ProjectID == nil {
			return nil, fmt.Errorf("%w: %s: chunk %d has no project_id", ErrInvalidCorpus, path, i)
		}
		out[i] = models.Chunk{ProjectID: *r.ProjectID, Content: r.Content}
	}
	return out, nil
}

func readJSON(path string, into any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(b, into); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrInvalidCorpus, path, err)
	}
	return nil
}

// readMatrix loads the chunk embedding matrix. The format follows the file
// extension: .npy (NumPy array) or .json (array of rows).
func readMatrix(path string) ([][]float32, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".npy":
		return readNPY(path)
	case ".json":
		var rows [][]float32
		if err := readJSON(path, &rows); err != nil {
			return nil, err
		}
		return rows, nil
	default:
		return nil, fmt.Errorf("%w: unsupported embedding format %q", ErrInvalidCorpus, filepath.Ext(path))
	}
}

func readNPY(path string) ([][]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	defer f.Close()

	r, err := npyio.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidCorpus, path, err)
	}
	descr := r.Header.Descr
	if len(descr.Shape) != 2 {
		return nil, fmt.Errorf("%w: %s: want a 2-D matrix, got shape %v", ErrInvalidCorpus, path, descr.Shape)
	}
	if descr.Fortran {
		return nil, fmt.Errorf("%w: %s: fortran-ordered arrays are not supported", ErrInvalidCorpus, path)
	}
	rows, cols := descr.Shape[0], descr.Shape[1]
	if rows < 0 || cols < 0 {
		return nil, fmt.Errorf("%w: %s: negative shape %v", ErrInvalidCorpus, path, descr.Shape)
	}

	var itemSize int64
	switch descr.Type {
	case "<f4", "f4", "float32":
		itemSize = 4
	case "<f8", "f8", "float64":
		itemSize = 8
	default:
		return nil, fmt.Errorf("%w: %s: unsupported dtype %q", ErrInvalidCorpus, path, descr.Type)
	}
	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	// The header alone must not be able to demand more memory than the file
	// holds.
	size := st.Size()
	if cols > 0 && (int64(cols) > size/itemSize || int64(rows) > size/(int64(cols)*itemSize)) {
		return nil, fmt.Errorf("%w: %s: shape %v exceeds file size %d", ErrInvalidCorpus, path, descr.Shape, size)
	}

	flat := make([]float32, rows*cols)
	if itemSize == 4 {
		if err := r.Read(&flat); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidCorpus, path, err)
		}
	} else {
		wide := make([]float64, rows*cols)
		if err := r.Read(&wide); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidCorpus, path, err)
		}
		for i, v := range wide {
			flat[i] = float32(v)
		}
	}

	out := make([][]float32, rows)
	for i := range out {
		out[i] = flat[i*cols : (i+1)*cols : (i+1)*cols]
	}
	return out, nil
}
