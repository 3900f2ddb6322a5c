// Fuzz runner for vae.
//
// Discovers every Fuzz function under internal/, runs each for FUZZ_TIME and
// writes a report to target/reports/fuzz.txt. Codec targets run a second
// time with the noflac tag, so the PCM-only build is fuzzed as well. Exits
// non-zero if any target finds a failing input.
//
// Usage:
//
//	go run ./scripts/fuzz
//	FUZZ_TIME=60s FUZZ_MATCH=FLAC go run ./scripts/fuzz
package main

import (
	"bufio"
	"bytes"
	"fmt"
	"go/build/constraint"
	"io"
	"io/fs"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"time"
)

// tagVariants lists extra build tags a package is fuzzed under.
var tagVariants = map[string][]string{
	"./internal/codec/": {"noflac"},
}

type fuzzTarget struct {
	Function string
	Package  string
	Tags     string
}

func (t fuzzTarget) String() string {
	if t.Tags == "" {
		return t.Function
	}
	return t.Function + " [" + t.Tags + "]"
}

type fuzzResult struct {
	Target         fuzzTarget
	Duration       time.Duration
	Execs          int64
	ExecsPerSec    int64
	NewInteresting int
	Passed         bool
	Output         string
}

var (
	reFuzzFunc       = regexp.MustCompile(`^func (Fuzz\w+)\(\w+ \*testing\.F\)`)
	reExecs          = regexp.MustCompile(`execs:\s+(\d+)\s+\((\d+)/sec\)`)
	reNewInteresting = regexp.MustCompile(`new interesting:\s+(\d+)`)
)

func main() {
	projectRoot := findProjectRoot()
	reportDir := filepath.Join(projectRoot, "target", "reports")
	if err := os.MkdirAll(reportDir, 0o755); err != nil {
		log.Fatalf("creating report directory: %v", err)
	}

	fuzzTime := os.Getenv("FUZZ_TIME")
	if fuzzTime == "" {
		fuzzTime = "30s"
	}
	var match *regexp.Regexp
	if m := os.Getenv("FUZZ_MATCH"); m != "" {
		match = regexp.MustCompile(m)
	}

	targets, err := discoverTargets(projectRoot, match)
	if err != nil {
		log.Fatalf("discovering fuzz targets: %v", err)
	}
	if len(targets) == 0 {
		log.Fatal("no fuzz targets found")
	}

	fmt.Printf("Running %d fuzz targets (fuzztime=%s each)...\n\n", len(targets), fuzzTime)

	start := time.Now()
	results := make([]fuzzResult, 0, len(targets))
	failures := 0
	for _, target := range targets {
		fmt.Printf("--- %s (%s) ---\n", target, target.Package)
		result := runFuzz(projectRoot, target, fuzzTime)
		results = append(results, result)
		if result.Passed {
			fmt.Printf("PASS: %s  execs: %d (%d/sec)  new interesting: %d\n\n",
				target, result.Execs, result.ExecsPerSec, result.NewInteresting)
		} else {
			failures++
			fmt.Printf("FAIL: %s\n\n", target)
		}
	}

	reportPath := filepath.Join(reportDir, "fuzz.txt")
	if err := os.WriteFile(reportPath, []byte(buildReport(start, fuzzTime, results)), 0o644); err != nil {
		log.Fatalf("writing fuzz report: %v", err)
	}
	fmt.Printf("Fuzz report: %s\n", reportPath)

	if failures > 0 {
		fmt.Printf("\n%d fuzz target(s) failed.\n", failures)
		os.Exit(1)
	}
	fmt.Println("\nAll fuzz targets passed.")
}

// discoverTargets scans the test files under internal/ for Fuzz functions.
// A target joins a tag variant only if its file builds under that tag.
func discoverTargets(root string, match *regexp.Regexp) ([]fuzzTarget, error) {
	var targets []fuzzTarget
	err := filepath.WalkDir(filepath.Join(root, "internal"), func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, "_test.go") {
			return err
		}
		funcs, expr, err := scanTestFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, filepath.Dir(path))
		if err != nil {
			return err
		}
		pkg := "./" + filepath.ToSlash(rel) + "/"
		for _, fn := range funcs {
			if match != nil && !match.MatchString(fn) {
				continue
			}
			if builds(expr, nil) {
				targets = append(targets, fuzzTarget{Function: fn, Package: pkg})
			}
			for _, tag := range tagVariants[pkg] {
				if builds(expr, []string{tag}) {
					targets = append(targets, fuzzTarget{Function: fn, Package: pkg, Tags: tag})
				}
			}
		}
		return nil
	})
	slices.SortStableFunc(targets, func(a, b fuzzTarget) int {
		return strings.Compare(a.Package+a.Tags, b.Package+b.Tags)
	})
	return targets, err
}

func scanTestFile(path string) ([]string, constraint.Expr, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	var funcs []string
	var expr constraint.Expr
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if expr == nil && constraint.IsGoBuild(line) {
			if expr, err = constraint.Parse(line); err != nil {
				return nil, nil, fmt.Errorf("%s: %w", path, err)
			}
		}
		if m := reFuzzFunc.FindStringSubmatch(line); m != nil {
			funcs = append(funcs, m[1])
		}
	}
	return funcs, expr, sc.Err()
}

func builds(expr constraint.Expr, tags []string) bool {
	if expr == nil {
		return true
	}
	return expr.Eval(func(tag string) bool {
		return slices.Contains(tags, tag) || tag == runtime.GOOS || tag == runtime.GOARCH
	})
}

func runFuzz(projectRoot string, target fuzzTarget, fuzzTime string) fuzzResult {
	start := time.Now()

	args := []string{"test", "-run=^$", "-fuzz=^" + target.Function + "$", "-fuzztime=" + fuzzTime}
	if target.Tags != "" {
		args = append(args, "-tags="+target.Tags)
	}
	cmd := exec.Command("go", append(args, target.Package)...)
	cmd.Dir = projectRoot

	var buf bytes.Buffer
	cmd.Stdout = io.MultiWriter(os.Stdout, &buf)
	cmd.Stderr = io.MultiWriter(os.Stderr, &buf)
	err := cmd.Run()
	output := buf.String()

	res := fuzzResult{Target: target, Duration: time.Since(start), Output: output}
	lines := strings.Split(output, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if !strings.HasPrefix(lines[i], "fuzz: elapsed:") {
			continue
		}
		if m := reExecs.FindStringSubmatch(lines[i]); m != nil {
			res.Execs, _ = strconv.ParseInt(m[1], 10, 64)
			res.ExecsPerSec, _ = strconv.ParseInt(m[2], 10, 64)
		}
		if m := reNewInteresting.FindStringSubmatch(lines[i]); m != nil {
			res.NewInteresting, _ = strconv.Atoi(m[1])
		}
		break
	}

	// The fuzz timer can race test shutdown and report a deadline error
	// without a failing input.
	res.Passed = err == nil ||
		(strings.Contains(output, "context deadline exceeded") &&
			!strings.Contains(output, "Failing input written to"))
	return res
}

func buildReport(start time.Time, fuzzTime string, results []fuzzResult) string {
	var sb strings.Builder
	sep := strings.Repeat("=", 78)
	thin := strings.Repeat("-", 78)

	sb.WriteString("vae fuzz report\n")
	sb.WriteString(sep + "\n")
	fmt.Fprintf(&sb, "Generated:   %s\n", start.Format(time.RFC1123))
	fmt.Fprintf(&sb, "Go:          %s\n", goVersion())
	fmt.Fprintf(&sb, "OS/Arch:     %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&sb, "Fuzz time:   %s per target\n", fuzzTime)
	sb.WriteString(sep + "\n\n")

	fmt.Fprintf(&sb, "  %-24s  %-36s  %-4s  %12s  %s\n", "Package", "Target", "", "Execs", "New corpus")
	sb.WriteString(thin + "\n")
	var totalExecs int64
	failures := 0
	for _, r := range results {
		status := "PASS"
		if !r.Passed {
			status = "FAIL"
			failures++
		}
		totalExecs += r.Execs
		fmt.Fprintf(&sb, "  %-24s  %-36s  %-4s  %12d  %d\n",
			strings.TrimSuffix(strings.TrimPrefix(r.Target.Package, "./internal/"), "/"),
			r.Target, status, r.Execs, r.NewInteresting)
	}
	sb.WriteString(thin + "\n")
	fmt.Fprintf(&sb, "  Total executions: %d\n", totalExecs)
	if failures > 0 {
		fmt.Fprintf(&sb, "  Failed targets:   %d\n", failures)
	}
	sb.WriteString("\n")

	// Full output only for failures; passing runs are summarised above.
	for _, r := range results {
		if r.Passed {
			continue
		}
		fmt.Fprintf(&sb, "[FAIL] %s in %s after %s\n", r.Target, r.Target.Package, r.Duration.Round(time.Millisecond))
		for line := range strings.SplitSeq(strings.TrimRight(r.Output, "\n"), "\n") {
			fmt.Fprintf(&sb, "    %s\n", line)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func goVersion() string {
	out, err := exec.Command("go", "version").Output()
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(out))
}

func findProjectRoot() string {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		log.Fatal("could not determine script directory")
	}
	dir := filepath.Dir(filename)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			log.Fatal("could not find project root (no go.mod found)")
		}
		dir = parent
	}
}
