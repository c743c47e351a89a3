package storage

import (
	"fmt"
	"regexp"

	"github.com/pixil98/go-errors"
)

// RecordVersion is written into every record file.
const RecordVersion = 1

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

type ValidatingSpec interface {
	Validate() error
}

// Record is the on-disk envelope around a stored value.
type Record[T ValidatingSpec] struct {
	Version uint   `json:"version"`
	ID      string `json:"id"`
	Spec    T      `json:"spec"`
}

// ValidID reports whether id can name a record file.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

func (r *Record[T]) Validate() error {
	el := errors.NewErrorList()

	if r.Version == 0 {
		el.Add(fmt.Errorf("version must be set"))
	} else if r.Version > RecordVersion {
		el.Add(fmt.Errorf("version %d is newer than %d", r.Version, RecordVersion))
	}

	if r.ID == "" {
		el.Add(fmt.Errorf("id must be set"))
	} else if !ValidID(r.ID) {
		el.Add(fmt.Errorf("id %q may only contain letters, digits, '-' and '_'", r.ID))
	}

	el.Add(r.Spec.Validate())

	return el.Err()
}
