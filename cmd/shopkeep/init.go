package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nugget/shopkeep/examples"
)

// runInit writes the example config and catalog into dir. Existing
// files are never overwritten.
func runInit(w io.Writer, dir string) error {
	fmt.Fprintf(w, "Initializing Shopkeep workspace in %s\n", dir)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	// config.yaml may carry API keys.
	for _, f := range []struct {
		name    string
		content []byte
		perm    os.FileMode
	}{
		{"config.yaml", examples.ConfigYAML, 0o600},
		{"products.csv", examples.ProductsCSV, 0o644},
	} {
		path := filepath.Join(dir, f.name)
		wrote, err := writeIfMissing(path, f.content, f.perm)
		if err != nil {
			return err
		}
		if wrote {
			fmt.Fprintf(w, "  ✓ %s\n", path)
		} else {
			fmt.Fprintf(w, "  - %s (exists, kept)\n", path)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Edit config.yaml, then load the catalog with:")
	fmt.Fprintf(w, "  shopkeep -config %s import %s\n", filepath.Join(dir, "config.yaml"), filepath.Join(dir, "products.csv"))
	return nil
}

// writeIfMissing writes content to path only if the file does not
// already exist, reporting whether it wrote.
func writeIfMissing(path string, content []byte, perm os.FileMode) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.WriteFile(path, content, perm); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
