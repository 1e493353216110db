package riptidehttp

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/telsin/riptide/internal/utils"
)

// assembleChunks builds the final file from chunk files in ascending range
// order, regardless of the order chunks finished downloading. Chunk files are
// only deleted after the whole file is written, so a failed assembly can be
// retried without refetching.
func assembleChunks(chunks []utils.Chunk, tempDir, outputPath string, expectedSize int64) error {
	sorted := make([]utils.Chunk, len(chunks))
	copy(sorted, chunks)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})

	if len(sorted) == 1 {
		partPath := chunkPartPath(tempDir, outputPath, sorted[0])
		if err := moveFile(partPath, outputPath); err != nil {
			return err
		}
		removeTempDirIfEmpty(tempDir)
		return checkFinalSize(outputPath, expectedSize)
	}

	destFile, err := os.OpenFile(outputPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("error creating output file: %v", err)
	}

	var totalWritten int64
	for _, chunk := range sorted {
		partPath := chunkPartPath(tempDir, outputPath, chunk)
		written, err := appendChunk(destFile, partPath)
		if err != nil {
			destFile.Close()
			return err
		}
		if size := chunk.Size(); size >= 0 && written != size {
			destFile.Close()
			return fmt.Errorf("chunk %s wrote %d bytes, expected %d", chunk.RangeKey(), written, size)
		}
		totalWritten += written
	}
	if err := destFile.Close(); err != nil {
		return fmt.Errorf("error closing output file: %v", err)
	}
	if expectedSize > 0 && totalWritten != expectedSize {
		return fmt.Errorf("assembled %d bytes, expected %d", totalWritten, expectedSize)
	}

	for _, chunk := range sorted {
		os.Remove(chunkPartPath(tempDir, outputPath, chunk))
	}
	removeTempDirIfEmpty(tempDir)
	return nil
}

func appendChunk(dest *os.File, partPath string) (int64, error) {
	part, err := os.Open(partPath)
	if err != nil {
		return 0, fmt.Errorf("error opening chunk file: %v", err)
	}
	defer part.Close()
	written, err := io.Copy(dest, part)
	if err != nil {
		return written, fmt.Errorf("error copying chunk %s: %v", partPath, err)
	}
	return written, nil
}

// moveFile renames when possible and falls back to copy+delete for
// cross-device moves.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("error opening chunk file: %v", err)
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("error creating output file: %v", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("error copying to output file: %v", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("error closing output file: %v", err)
	}
	return os.Remove(src)
}

func checkFinalSize(outputPath string, expectedSize int64) error {
	if expectedSize <= 0 {
		return nil
	}
	info, err := os.Stat(outputPath)
	if err != nil {
		return fmt.Errorf("error checking output file: %v", err)
	}
	if info.Size() != expectedSize {
		return fmt.Errorf("output file is %d bytes, expected %d", info.Size(), expectedSize)
	}
	return nil
}

func removeTempDirIfEmpty(tempDir string) {
	entries, err := os.ReadDir(tempDir)
	if err == nil && len(entries) == 0 {
		os.Remove(tempDir)
	}
}
