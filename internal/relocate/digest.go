package relocate

import (
	"fmt"
	"io"
	"os"

	"lukechampine.com/blake3"
)

// digestFile returns the hex BLAKE3-256 digest of a file's contents.
func digestFile(path string, buf []byte) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New(32, nil)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
