package language

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ieee0824/dflat/internal/mathutil"
)

// ErrBadARPA is returned for a malformed ARPA file.
var ErrBadARPA = errors.New("language: malformed arpa file")

// LoadARPA reads a language model in ARPA format.
// Log probabilities in ARPA files are base-10; they are converted to the
// base of lm, natural logs when lm is nil.
func LoadARPA(r io.Reader, lm *mathutil.LogMath) (*Model, error) {
	if lm == nil {
		lm = mathutil.Natural()
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	// Skip until \data\ section
	found := false
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == `\data\` {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: no \\data\\ section", ErrBadARPA)
	}

	// Parse ngram counts
	var counts []int
	line := ""
	for scanner.Scan() {
		line = strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		rest, ok := strings.CutPrefix(line, "ngram ")
		if !ok {
			break
		}
		orderStr, countStr, ok := strings.Cut(rest, "=")
		if !ok {
			return nil, fmt.Errorf("%w: bad count line %q", ErrBadARPA, line)
		}
		order, err1 := strconv.Atoi(strings.TrimSpace(orderStr))
		count, err2 := strconv.Atoi(strings.TrimSpace(countStr))
		if err1 != nil || err2 != nil || order != len(counts)+1 {
			return nil, fmt.Errorf("%w: bad count line %q", ErrBadARPA, line)
		}
		counts = append(counts, count)
	}
	if len(counts) == 0 {
		return nil, fmt.Errorf("%w: no n-gram counts", ErrBadARPA)
	}
	model := NewModel(len(counts), lm)

	// Parse n-gram sections
	for line != `\end\` {
		orderStr, ok := strings.CutSuffix(strings.TrimPrefix(line, `\`), "-grams:")
		if !ok {
			if !scanner.Scan() {
				return nil, fmt.Errorf("%w: missing \\end\\", ErrBadARPA)
			}
			line = strings.TrimSpace(scanner.Text())
			continue
		}
		order, err := strconv.Atoi(orderStr)
		if err != nil || order < 1 || order > len(counts) {
			return nil, fmt.Errorf("%w: bad section %q", ErrBadARPA, line)
		}
		line = ""
		for scanner.Scan() {
			entry := strings.TrimSpace(scanner.Text())
			if entry == "" {
				continue
			}
			if strings.HasPrefix(entry, `\`) {
				line = entry
				break
			}
			if err := parseNGramLine(model, order, entry); err != nil {
				return nil, fmt.Errorf("parse n-gram line %q: %w", entry, err)
			}
		}
		if line == "" {
			return nil, fmt.Errorf("%w: missing \\end\\", ErrBadARPA)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	for i, want := range counts {
		if got := model.Len(i + 1); got != want {
			return nil, fmt.Errorf("%w: %d %d-grams declared, %d read", ErrBadARPA, want, i+1, got)
		}
	}
	return model, nil
}

// LoadARPAFile reads an ARPA file from path.
func LoadARPAFile(path string, lm *mathutil.LogMath) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open language model: %w", err)
	}
	defer f.Close()
	return LoadARPA(f, lm)
}

func parseNGramLine(model *Model, order int, line string) error {
	fields := strings.Fields(line)
	if len(fields) < order+1 {
		return fmt.Errorf("%w: too few fields for %d-gram", ErrBadARPA, order)
	}

	logProb, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return fmt.Errorf("parse log prob: %w", err)
	}

	var logBackoff float64
	if len(fields) > order+1 {
		bo, err := strconv.ParseFloat(fields[order+1], 64)
		if err != nil {
			return fmt.Errorf("parse backoff: %w", err)
		}
		logBackoff = model.lm.Log10ToLog(bo)
	}

	return model.Add(model.lm.Log10ToLog(logProb), logBackoff, fields[1:order+1]...)
}
