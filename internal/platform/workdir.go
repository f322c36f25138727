package platform

import "os"

// WorkingDirectory is a scoped chdir. Enter switches the process
// working directory and Restore puts it back; callers defer Restore so
// the original directory returns on every exit path.
type WorkingDirectory struct {
	previous string
}

// Enter changes into dir and remembers the current directory.
func Enter(dir string) (*WorkingDirectory, error) {
	previous, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	if err := os.Chdir(dir); err != nil {
		return nil, err
	}
	return &WorkingDirectory{previous: previous}, nil
}

// Restore changes back to the directory active at Enter.
func (w *WorkingDirectory) Restore() error {
	return os.Chdir(w.previous)
}
