package chunk

import (
	"errors"
	"fmt"
	"os"
)

// Retire takes a consumed file out of the sorted/unsorted namespace in two
// steps: rename to the disposable extension, then delete when remove is set.
// After a crash between the steps the file is visible only under its
// disposable name.
func Retire(path string, n Naming, remove bool) error {
	disposable := n.DisposablePath(path)
	if err := os.Rename(path, disposable); err != nil {
		return fmt.Errorf("retire %s: %w", path, err)
	}
	if !remove {
		return nil
	}
	if err := os.Remove(disposable); err != nil {
		return fmt.Errorf("delete %s: %w", disposable, err)
	}
	return nil
}

// RetireAll retires every path and returns the joined errors.
func RetireAll(paths []string, n Naming, remove bool) error {
	var errs []error
	for _, p := range paths {
		if err := Retire(p, n, remove); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
