package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

const verifyBufferSize = 1024 * 1024

// ChecksumError reports a hash mismatch between the downloaded file and the
// expected digest. The file is left in place for inspection.
type ChecksumError struct {
	Expected string
	Actual   string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch: expected %s, got %s", e.Expected, e.Actual)
}

// VerifyFile streams the file through SHA-256 and compares against the
// expected hex digest, case-insensitively.
func VerifyFile(path, expected string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("error opening file for verification: %v", err)
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.CopyBuffer(hash, file, make([]byte, verifyBufferSize)); err != nil {
		return fmt.Errorf("error hashing file: %v", err)
	}
	actual := hex.EncodeToString(hash.Sum(nil))
	if !strings.EqualFold(actual, expected) {
		return &ChecksumError{Expected: strings.ToLower(expected), Actual: actual}
	}
	return nil
}
