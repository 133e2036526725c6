package scope

import (
	"io/fs"
	"os"
)

// rootFS exposes the manager's root directory as an fs.FS for
// doublestar globbing.
func rootFS(root string) fs.FS {
	return os.DirFS(root)
}
