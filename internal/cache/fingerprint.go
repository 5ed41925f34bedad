package cache

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rnwolfe/envoluntary/internal/flake"
	"github.com/zeebo/blake3"
)

// watchedFiles are the files of a path flake whose content decides
// whether its environment is stale.
var watchedFiles = []string{"flake.nix", "flake.lock", "devshell.toml"}

// Fingerprint hashes the inputs of key's flake. For path flakes it covers
// the watched files, plus the directory mtime when impure. Remote flakes
// are fingerprinted by reference alone; only nix can resolve them, so
// they are refreshed by forcing a rebuild.
func Fingerprint(key Key) (string, error) {
	ref, err := flake.Parse(key.FlakeReference)
	if err != nil {
		return "", err
	}

	h := blake3.New()
	writeField(h, "ref", ref.Expanded)
	if key.Impure {
		writeField(h, "impure", "1")
	}
	if !ref.IsPath() {
		return hex.EncodeToString(h.Sum(nil)), nil
	}

	for _, name := range watchedFiles {
		data, err := os.ReadFile(filepath.Join(ref.Dir, name))
		switch {
		case err == nil:
			writeField(h, name, string(data))
		case errors.Is(err, os.ErrNotExist):
			writeField(h, name+"!missing", "")
		default:
			return "", fmt.Errorf("reading %s: %w", name, err)
		}
	}
	if key.Impure {
		info, err := os.Stat(ref.Dir)
		if err != nil {
			return "", err
		}
		writeField(h, "mtime", strconv.FormatInt(info.ModTime().UnixNano(), 10))
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// writeField length-prefixes each part so adjacent fields cannot collide.
func writeField(h *blake3.Hasher, name, value string) {
	fmt.Fprintf(h, "%d:%s%d:", len(name), name, len(value))
	h.Write([]byte(value))
}
