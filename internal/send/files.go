package send

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResolveUploadPath turns an attachment reference into the absolute path
// handed to the file chooser. Relative references are probed against the
// primary uploads root and then each alternate root in order. The error for
// a missing file enumerates every probed path so operators can see exactly
// where the lookup went.
func ResolveUploadPath(root string, alternates []string, ref string) (string, error) {
	var candidates []string
	if filepath.IsAbs(ref) {
		candidates = []string{filepath.Clean(ref)}
	} else {
		candidates = append(candidates, filepath.Join(root, ref))
		for _, alt := range alternates {
			candidates = append(candidates, filepath.Join(alt, ref))
		}
	}

	for _, c := range candidates {
		info, err := os.Stat(c)
		if err == nil && !info.IsDir() {
			return c, nil
		}
	}

	return "", fmt.Errorf("%w: %q (probed: %s)",
		ErrFileNotFound, ref, strings.Join(candidates, ", "))
}
