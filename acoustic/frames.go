package acoustic

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ReadFrames reads one frame per line, each a whitespace-separated list of
// feature values. Blank lines and lines starting with '#' are skipped.
// Every frame must have the same dimension.
func ReadFrames(r io.Reader) ([]*Frame, error) {
	var frames []*Frame
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		values := make([]float64, len(fields))
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("acoustic: frames line %d: %w", lineNo, err)
			}
			values[i] = v
		}
		if len(frames) > 0 && len(values) != len(frames[0].Values) {
			return nil, fmt.Errorf("acoustic: frames line %d: dimension %d, want %d", lineNo, len(values), len(frames[0].Values))
		}
		frames = append(frames, &Frame{Index: len(frames), Values: values})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return frames, nil
}

// ReadFramesFile reads frames from path.
func ReadFramesFile(path string) ([]*Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open frames: %w", err)
	}
	defer f.Close()
	return ReadFrames(f)
}

// WriteFrames writes frames in the format ReadFrames reads.
func WriteFrames(w io.Writer, frames []*Frame) error {
	bw := bufio.NewWriter(w)
	for _, f := range frames {
		for i, v := range f.Values {
			if i > 0 {
				bw.WriteByte(' ')
			}
			bw.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
