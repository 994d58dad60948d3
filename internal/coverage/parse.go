package coverage

import (
	"bufio"
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pinkman-dev/pinkman/pkg/models"
	"github.com/pinkman-dev/pinkman/pkg/qaerrors"
)

// Sniff identifies the coverage format by content, never by file name
func Sniff(data []byte) (models.CoverageFormat, error) {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0:
		return "", fmt.Errorf("%w: empty artifact", qaerrors.ErrUnrecognizedFormat)
	case bytes.HasPrefix(trimmed, []byte("TN:")) || bytes.HasPrefix(trimmed, []byte("SF:")):
		return models.FormatLCOV, nil
	case bytes.HasPrefix(trimmed, []byte("mode:")):
		return models.FormatGoCoverProfile, nil
	case trimmed[0] == '<':
		if bytes.Contains(trimmed, []byte("<coverage")) {
			return models.FormatCobertura, nil
		}
	case trimmed[0] == '{':
		if bytes.Contains(trimmed, []byte(`"statementMap"`)) || bytes.Contains(trimmed, []byte(`"s":`)) {
			return models.FormatIstanbul, nil
		}
	}
	return "", fmt.Errorf("%w: no known format markers", qaerrors.ErrUnrecognizedFormat)
}

// Parse sniffs and parses a coverage artifact
func Parse(data []byte) (*models.CoverageReport, error) {
	format, err := Sniff(data)
	if err != nil {
		return nil, err
	}

	report := &models.CoverageReport{Format: format, Files: map[string]models.FileCoverage{}}
	switch format {
	case models.FormatLCOV:
		err = parseLCOV(data, report)
	case models.FormatCobertura:
		err = parseCobertura(data, report)
	case models.FormatIstanbul:
		err = parseIstanbul(data, report)
	case models.FormatGoCoverProfile:
		err = parseGoCover(data, report)
	}
	if err != nil {
		return nil, err
	}
	return report, nil
}

func parseLCOV(data []byte, report *models.CoverageReport) error {
	var (
		path           string
		covered, total int
		uncovered      []int
	)
	flush := func() {
		if path == "" {
			return
		}
		report.Files[path] = models.FileCoverage{
			Path:           path,
			LinePercent:    percent(covered, total),
			UncoveredLines: uncovered,
		}
		path, covered, total, uncovered = "", 0, 0, nil
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "SF:"):
			flush()
			path = strings.TrimPrefix(line, "SF:")
		case strings.HasPrefix(line, "DA:"):
			parts := strings.Split(strings.TrimPrefix(line, "DA:"), ",")
			if len(parts) < 2 {
				continue
			}
			lineNo, err1 := strconv.Atoi(parts[0])
			hits, err2 := strconv.Atoi(parts[1])
			if err1 != nil || err2 != nil {
				continue
			}
			total++
			if hits > 0 {
				covered++
			} else {
				uncovered = append(uncovered, lineNo)
			}
		case line == "end_of_record":
			flush()
		}
	}
	flush()
	return scanner.Err()
}

type coberturaDoc struct {
	XMLName  xml.Name `xml:"coverage"`
	Packages []struct {
		Classes []struct {
			Filename   string  `xml:"filename,attr"`
			LineRate   float64 `xml:"line-rate,attr"`
			BranchRate float64 `xml:"branch-rate,attr"`
			Lines      []struct {
				Number int `xml:"number,attr"`
				Hits   int `xml:"hits,attr"`
			} `xml:"lines>line"`
		} `xml:"classes>class"`
	} `xml:"packages>package"`
}

func parseCobertura(data []byte, report *models.CoverageReport) error {
	var doc coberturaDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: cobertura: %v", qaerrors.ErrUnrecognizedFormat, err)
	}
	for _, pkg := range doc.Packages {
		for _, class := range pkg.Classes {
			fc := models.FileCoverage{
				Path:          class.Filename,
				LinePercent:   class.LineRate * 100,
				BranchPercent: class.BranchRate * 100,
			}
			for _, l := range class.Lines {
				if l.Hits == 0 {
					fc.UncoveredLines = append(fc.UncoveredLines, l.Number)
				}
			}
			report.Files[class.Filename] = fc
		}
	}
	return nil
}

type istanbulFile struct {
	Path         string `json:"path"`
	StatementMap map[string]struct {
		Start struct {
			Line int `json:"line"`
		} `json:"start"`
	} `json:"statementMap"`
	S map[string]int `json:"s"`
}

func parseIstanbul(data []byte, report *models.CoverageReport) error {
	var doc map[string]istanbulFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: istanbul: %v", qaerrors.ErrUnrecognizedFormat, err)
	}
	for key, file := range doc {
		path := file.Path
		if path == "" {
			path = key
		}
		var covered int
		var uncovered []int
		for id, hits := range file.S {
			if hits > 0 {
				covered++
			} else if stmt, ok := file.StatementMap[id]; ok {
				uncovered = append(uncovered, stmt.Start.Line)
			}
		}
		sort.Ints(uncovered)
		report.Files[path] = models.FileCoverage{
			Path:           path,
			LinePercent:    percent(covered, len(file.S)),
			UncoveredLines: uncovered,
		}
	}
	return nil
}

func parseGoCover(data []byte, report *models.CoverageReport) error {
	type tally struct {
		covered, total int
		uncovered      []int
	}
	files := map[string]*tally{}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "mode:") {
			continue
		}
		// path/file.go:12.2,14.30 2 1
		colon := strings.LastIndex(line, ":")
		if colon < 0 {
			continue
		}
		path := line[:colon]
		fields := strings.Fields(line[colon+1:])
		if len(fields) != 3 {
			continue
		}
		count, err := strconv.Atoi(fields[2])
		if err != nil {
			continue
		}
		startLine, err := strconv.Atoi(strings.SplitN(fields[0], ".", 2)[0])
		if err != nil {
			continue
		}

		t, ok := files[path]
		if !ok {
			t = &tally{}
			files[path] = t
		}
		t.total++
		if count > 0 {
			t.covered++
		} else {
			t.uncovered = append(t.uncovered, startLine)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	for path, t := range files {
		sort.Ints(t.uncovered)
		report.Files[path] = models.FileCoverage{
			Path:           path,
			LinePercent:    percent(t.covered, t.total),
			UncoveredLines: t.uncovered,
		}
	}
	return nil
}

func percent(covered, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(covered) / float64(total) * 100
}
