package srt

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Parse reads an SRT file back into Cues. It exists mainly so the writer's
// round-trip property (parse then re-serialise is byte-identical) can be
// tested without a third-party SRT parser.
func Parse(path string) ([]Cue, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cues []Cue
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		ordLine := strings.TrimSpace(scanner.Text())
		if ordLine == "" {
			continue
		}
		ordinal, err := strconv.Atoi(ordLine)
		if err != nil {
			return nil, fmt.Errorf("srt: expected ordinal, got %q", ordLine)
		}
		if !scanner.Scan() {
			return nil, fmt.Errorf("srt: truncated cue %d", ordinal)
		}
		start, end, err := parseTimeRange(scanner.Text())
		if err != nil {
			return nil, err
		}

		var textLines []string
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				break
			}
			textLines = append(textLines, line)
		}
		cues = append(cues, Cue{
			Ordinal: ordinal,
			Start:   start,
			End:     end,
			Text:    strings.Join(textLines, "\n"),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cues, nil
}

func parseTimeRange(line string) (time.Duration, time.Duration, error) {
	parts := strings.SplitN(line, " --> ", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("srt: malformed time range %q", line)
	}
	start, err := parseTimestamp(parts[0])
	if err != nil {
		return 0, 0, err
	}
	end, err := parseTimestamp(parts[1])
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

func parseTimestamp(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	var hh, mm, ss, ms int
	if _, err := fmt.Sscanf(s, "%02d:%02d:%02d,%03d", &hh, &mm, &ss, &ms); err != nil {
		return 0, fmt.Errorf("srt: malformed timestamp %q: %w", s, err)
	}
	return time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute +
		time.Duration(ss)*time.Second + time.Duration(ms)*time.Millisecond, nil
}
