package token

import (
	"fmt"
	"os"
	"strings"

	"github.com/nftsnap/nftsnap/pkg/utils"
)

// ReadList reads one token address per line, skipping blank lines.
func ReadList(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read token list %s: %w", path, err)
	}
	return utils.NonEmpty(strings.Split(string(b), "\n")), nil
}

// WriteList writes the addresses newline-joined, overwriting path.
func WriteList(path string, addresses []string) error {
	if err := os.WriteFile(path, []byte(strings.Join(addresses, "\n")), 0o644); err != nil {
		return fmt.Errorf("write token list %s: %w", path, err)
	}
	return nil
}
