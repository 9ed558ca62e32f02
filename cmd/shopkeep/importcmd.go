package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/nugget/shopkeep/internal/store"
)

// defaultImportStock stocks imported rows that carry no quantity.
const defaultImportStock = 100

// runImport loads a product CSV into the configured database.
func runImport(ctx context.Context, stdout, stderr io.Writer, configPath string, args []string) error {
	stock := defaultImportStock
	var path string
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-stock" && i+1 < len(args):
			n, err := strconv.Atoi(args[i+1])
			if err != nil || n < 0 {
				return fmt.Errorf("invalid -stock value %q", args[i+1])
			}
			stock = n
			i++
		case strings.HasPrefix(args[i], "-"):
			return fmt.Errorf("unknown import flag: %s", args[i])
		case path == "":
			path = args[i]
		default:
			return fmt.Errorf("unexpected argument: %s", args[i])
		}
	}
	if path == "" {
		return fmt.Errorf("usage: shopkeep import [-stock N] <products.csv>")
	}

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := configuredLogger(stderr, cfg)

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	st, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, logger)
	if err != nil {
		return fmt.Errorf("open %s database: %w", cfg.Database.Driver, err)
	}
	defer st.Close()

	stats, err := st.ImportProducts(ctx, f, stock)
	if err != nil {
		return fmt.Errorf("import %s: %w", path, err)
	}
	fmt.Fprintf(stdout, "Imported %d products (%d skipped) from %s\n", stats.Imported, stats.Skipped, path)
	return nil
}
