package routine

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// LoadFile reads a routine from a YAML file.
func LoadFile(path string) (*Routine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading routine file: %w", err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// Parse decodes a YAML routine, fills in missing ids and ordering, and
// validates superset references.
func Parse(data []byte) (*Routine, error) {
	var r Routine
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing routine: %w", err)
	}
	if strings.TrimSpace(r.Name) == "" {
		return nil, fmt.Errorf("routine name is required")
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	for i := range r.Supersets {
		r.Supersets[i].OrderIndex = i
		if r.Supersets[i].ID == "" {
			r.Supersets[i].ID = uuid.NewString()
		}
	}

	explicitOrder := make(map[string]bool)
	for i := range r.Exercises {
		ex := &r.Exercises[i]
		ex.OrderIndex = i
		if ex.ID == "" {
			ex.ID = uuid.NewString()
		}
		if ex.Exercise.ID == "" {
			ex.Exercise.ID = slug(ex.Exercise.Name)
		}
		if ex.SupersetID != "" && ex.OrderInSuperset != 0 {
			explicitOrder[ex.SupersetID] = true
		}
	}
	// without explicit ordering, members run in file order
	next := make(map[string]int)
	for i := range r.Exercises {
		ex := &r.Exercises[i]
		if ex.SupersetID == "" || explicitOrder[ex.SupersetID] {
			continue
		}
		ex.OrderInSuperset = next[ex.SupersetID]
		next[ex.SupersetID]++
	}

	r.Normalize()
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Marshal encodes r in the routine file format.
func Marshal(r *Routine) ([]byte, error) {
	return yaml.Marshal(r)
}

func slug(name string) string {
	fields := strings.FieldsFunc(strings.ToLower(name), func(c rune) bool {
		return !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9')
	})
	return strings.Join(fields, "_")
}
