package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var sizeRegex = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?)\s*([kKmMgGtT]?[bB]?)?\s*$`)

// ParseSize converts shorthand like "4MB", "1.5g" or "512" into a byte count.
func ParseSize(s string) (int64, error) {
	matches := sizeRegex.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	value, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %v", s, err)
	}
	unit := strings.ToLower(strings.TrimSuffix(strings.ToLower(matches[2]), "b"))
	multiplier := float64(1)
	switch unit {
	case "":
	case "k":
		multiplier = 1 << 10
	case "m":
		multiplier = 1 << 20
	case "g":
		multiplier = 1 << 30
	case "t":
		multiplier = 1 << 40
	}
	result := int64(value * multiplier)
	if result <= 0 {
		return 0, fmt.Errorf("size %q must be positive", s)
	}
	return result, nil
}

func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func FormatSpeed(bytesPerSec float64) string {
	if bytesPerSec <= 0 {
		return "0 B/s"
	}
	formatted := FormatBytes(uint64(bytesPerSec))
	return formatted + "/s"
}

func GetRandomUserAgent() string {
	return userAgents[time.Now().UnixNano()%int64(len(userAgents))]
}

// DetermineTransferType picks the transfer implementation for a source string.
// Plain https URLs stay HTTP even for git hosts; only explicit clone forms
// (.git suffix or git@ remotes) select the clone path.
func DetermineTransferType(source string) TransferType {
	switch {
	case strings.HasPrefix(source, "s3://"):
		return TransferS3
	case strings.HasPrefix(source, "magnet:"), strings.HasSuffix(source, ".torrent"):
		return TransferTorrent
	case strings.HasPrefix(source, "git@"), strings.HasSuffix(source, ".git"):
		return TransferGitClone
	default:
		return TransferHTTP
	}
}

// ParseHeaderArgs converts "Name: value" pairs into a header map. A pair
// without a colon is a configuration error.
func ParseHeaderArgs(headers []string) (map[string]string, error) {
	result := make(map[string]string)
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" {
			return nil, fmt.Errorf("invalid header %q, expected 'Name: value'", header)
		}
		result[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return result, nil
}

func RenewOutputPath(outputPath string) string {
	dir := filepath.Dir(outputPath)
	base := filepath.Base(outputPath)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]
	index := 1
	for {
		outputPath = filepath.Join(dir, fmt.Sprintf("%s-(%d)%s", name, index, ext))
		if _, err := os.Stat(outputPath); os.IsNotExist(err) {
			return outputPath
		}
		index++
	}
}

// CleanDir removes the temp directory and any resume sidecars under dir.
func CleanDir(dir string) error {
	tempDir := filepath.Join(dir, TempDirName)
	if _, err := os.Stat(tempDir); err == nil {
		if err := os.RemoveAll(tempDir); err != nil {
			return err
		}
	} else if !os.IsNotExist(err) {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, ".") || !strings.HasSuffix(name, SidecarSuffix) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}
