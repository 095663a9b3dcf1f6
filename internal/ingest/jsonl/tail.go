package jsonl

import (
	"bufio"
	"os"
	"syscall"

	"github.com/boshu2/recall/internal/types"
)

// tailResult is the set of new lines read this tick plus the cursor state
// to persist afterward.
type tailResult struct {
	lines     []string
	newCursor types.Cursor
}

// tailFile implements spec.md §4.4.1's rotation-aware tailing: if the
// inode changed, or the recorded byte offset now exceeds the file's size,
// the file is treated as rotated and read from the start; otherwise
// reading resumes at byte_offset.
func tailFile(path string, cursor *types.Cursor) (tailResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return tailResult{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return tailResult{}, err
	}

	inode := fileInode(info)
	size := info.Size()

	startOffset := int64(0)
	if cursor != nil {
		rotated := cursor.FileInode != 0 && cursor.FileInode != inode
		truncated := cursor.ByteOffset > size
		if !rotated && !truncated {
			startOffset = cursor.ByteOffset
		}
	}

	if _, err := f.Seek(startOffset, 0); err != nil {
		return tailResult{}, err
	}

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	bytesRead := startOffset
	for scanner.Scan() {
		line := scanner.Text()
		bytesRead += int64(len(line)) + 1
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return tailResult{}, err
	}

	newCursor := types.Cursor{
		FileInode:  inode,
		FileSize:   size,
		FileMtime:  info.ModTime(),
		ByteOffset: size,
	}
	if cursor != nil {
		newCursor.SourceID = cursor.SourceID
	}

	return tailResult{lines: lines, newCursor: newCursor}, nil
}

func fileInode(info os.FileInfo) uint64 {
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		return stat.Ino
	}
	return 0
}
