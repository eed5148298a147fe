package storage

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var csvHeader = []string{"url", "scrape_date"}

// URLList is the append-only record of discovered auction URLs, kept both
// as a plain list and as a CSV with the date each URL was first seen.
type URLList struct {
	TextPath string
	CSVPath  string
}

func NewURLList(textPath, csvPath string) *URLList {
	return &URLList{TextPath: textPath, CSVPath: csvPath}
}

// AppendNew adds the URLs not already present to both files and returns how
// many were added to the text list.
func (l *URLList) AppendNew(urls []string, at time.Time) (int, error) {
	added := 0
	if l.TextPath != "" {
		n, err := AppendText(l.TextPath, urls)
		if err != nil {
			return 0, err
		}
		log.Printf("Added %d new URLs to %s", n, l.TextPath)
		added = n
	}
	if l.CSVPath != "" {
		n, err := AppendCSV(l.CSVPath, urls, at)
		if err != nil {
			return added, err
		}
		log.Printf("Added %d new URLs to %s", n, l.CSVPath)
		if l.TextPath == "" {
			added = n
		}
	}
	return added, nil
}

// ReadURLs reads a newline-delimited URL file. Lines are trimmed and blank
// lines skipped.
func ReadURLs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open url file: %w", err)
	}
	defer f.Close()

	urls := []string{}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			urls = append(urls, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read url file: %w", err)
	}
	return urls, nil
}

// AppendText appends each URL not already in path, one per line.
func AppendText(path string, urls []string) (int, error) {
	existing, err := ReadURLs(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, err
	}

	fresh := newURLs(existing, urls)
	if len(fresh) == 0 {
		return 0, nil
	}

	f, err := openAppend(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, u := range fresh {
		if _, err := w.WriteString(u + "\n"); err != nil {
			return 0, err
		}
	}
	if err := w.Flush(); err != nil {
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	return len(fresh), nil
}

// AppendCSV appends (url, scrape_date) rows for URLs not already in the
// first column of path. The header is written when the file is created.
func AppendCSV(path string, urls []string, at time.Time) (int, error) {
	existing, err := readCSVURLs(path)
	isNew := errors.Is(err, os.ErrNotExist)
	if err != nil && !isNew {
		return 0, err
	}

	fresh := newURLs(existing, urls)
	if len(fresh) == 0 && !isNew {
		return 0, nil
	}

	f, err := openAppend(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	if isNew {
		writer.Write(csvHeader)
	}
	date := at.Format(time.DateOnly)
	for _, u := range fresh {
		writer.Write([]string{u, date})
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return 0, fmt.Errorf("csv write error: %w", err)
	}
	return len(fresh), nil
}

func readCSVURLs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	var urls []string
	for first := true; ; first = false {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if first && len(row) > 0 && row[0] == csvHeader[0] {
			continue
		}
		if len(row) > 0 && row[0] != "" {
			urls = append(urls, row[0])
		}
	}
	return urls, nil
}

// newURLs returns candidates missing from existing, first occurrence only.
func newURLs(existing, candidates []string) []string {
	seen := make(map[string]bool, len(existing)+len(candidates))
	for _, u := range existing {
		seen[u] = true
	}
	var fresh []string
	for _, u := range candidates {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		fresh = append(fresh, u)
	}
	return fresh
}

func openAppend(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("could not create dir: %w", err)
		}
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}
