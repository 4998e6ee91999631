package server

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"text/tabwriter"
	"time"
)

// DefaultCrashLimit caps list_crash_reports when no limit is given.
const DefaultCrashLimit = 20

var crashExts = map[string]bool{
	".ips":   true,
	".crash": true,
	".panic": true,
	".diag":  true,
	".hang":  true,
	".spin":  true,
}

// "Finder-2024-05-01-101112.ips" -> "Finder"
var crashProcessRe = regexp.MustCompile(`^(.+?)[-_]\d{4}-\d{2}-\d{2}`)

// CrashReport is one crash report file.
type CrashReport struct {
	Path    string    `json:"path"`
	Process string    `json:"process"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// ListCrashReports scans dirs (not recursively) for crash reports whose file
// name contains filter, case-insensitively, newest first. Missing directories
// are skipped.
func ListCrashReports(dirs []string, filter string, limit int) ([]CrashReport, error) {
	if limit <= 0 {
		limit = DefaultCrashLimit
	}
	filter = strings.ToLower(filter)

	var reports []CrashReport
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
				continue
			}
			return nil, fmt.Errorf("read crash dir %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() || !crashExts[strings.ToLower(filepath.Ext(e.Name()))] {
				continue
			}
			if filter != "" && !strings.Contains(strings.ToLower(e.Name()), filter) {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			reports = append(reports, CrashReport{
				Path:    filepath.Join(dir, e.Name()),
				Process: crashProcess(e.Name()),
				Size:    info.Size(),
				ModTime: info.ModTime(),
			})
		}
	}

	sort.Slice(reports, func(i, j int) bool {
		if !reports[i].ModTime.Equal(reports[j].ModTime) {
			return reports[i].ModTime.After(reports[j].ModTime)
		}
		return reports[i].Path < reports[j].Path
	})
	if len(reports) > limit {
		reports = reports[:limit]
	}
	return reports, nil
}

func crashProcess(name string) string {
	if m := crashProcessRe.FindStringSubmatch(name); m != nil {
		return m[1]
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// FormatCrashReports renders reports as a table.
func FormatCrashReports(reports []CrashReport) string {
	if len(reports) == 0 {
		return "No crash reports found."
	}
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MODIFIED\tPROCESS\tSIZE\tPATH")
	for _, r := range reports {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", r.ModTime.Format("2006-01-02 15:04:05"), r.Process, r.Size, r.Path)
	}
	w.Flush()
	return b.String()
}
