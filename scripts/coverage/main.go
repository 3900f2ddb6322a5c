// Coverage gate for vae.
//
// Runs the internal packages with coverage, then the codec package again
// under the noflac tag. Statement coverage is checked against floors in
// coverage_required.txt: one for the module total and one per listed
// package. A floor is raised whenever coverage passes it, and the
// run fails if any figure drops below its floor.
//
// Usage:
//
//	go run ./scripts/coverage
package main

import (
	"bufio"
	"fmt"
	"log"
	"maps"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
)

const totalKey = "total"

// noflacPackages are also tested as the PCM-only build.
var noflacPackages = []string{"./internal/codec/..."}

// excluded path fragments are left out of every figure.
var excluded = []string{"/docs/swagger/", "/scripts/"}

type counts struct{ covered, total int }

func (c counts) percent() int {
	if c.total == 0 {
		return 0
	}
	return c.covered * 100 / c.total
}

func main() {
	root := findProjectRoot()
	floorsFile := filepath.Join(filepath.Dir(thisFile()), "coverage_required.txt")
	reportDir := filepath.Join(root, "target", "reports")
	if err := os.MkdirAll(reportDir, 0o755); err != nil {
		log.Fatalf("creating report directory: %v", err)
	}

	floors, err := readFloors(floorsFile)
	if err != nil {
		log.Fatalf("reading coverage floors: %v", err)
	}

	profile := filepath.Join(reportDir, "coverage.out")
	goTest(root, "-race", "-count=1", "-coverprofile="+profile, "./internal/...")
	goTest(root, append([]string{"-count=1", "-tags=noflac"}, noflacPackages...)...)

	module, err := modulePath(root)
	if err != nil {
		log.Fatalf("reading module path: %v", err)
	}
	byPkg, err := parseProfile(profile, module)
	if err != nil {
		log.Fatalf("parsing coverage profile: %v", err)
	}

	var total counts
	for _, c := range byPkg {
		total.covered += c.covered
		total.total += c.total
	}
	byPkg[totalKey] = total

	fmt.Printf("\n%-28s %8s %8s\n", "package", "covered", "floor")
	failed, raised := false, false
	for _, pkg := range slices.Sorted(maps.Keys(byPkg)) {
		got := byPkg[pkg].percent()
		floor, gated := floors[pkg]
		mark := ""
		switch {
		case !gated:
			fmt.Printf("%-28s %7d%% %8s\n", pkg, got, "-")
			continue
		case got < floor:
			mark, failed = "  BELOW FLOOR", true
		case got > floor:
			mark, raised = "  raised", true
			floors[pkg] = got
		}
		fmt.Printf("%-28s %7d%% %7d%%%s\n", pkg, got, floor, mark)
	}
	for pkg := range floors {
		if _, ok := byPkg[pkg]; !ok {
			fmt.Printf("%-28s no statements in profile\n", pkg)
			failed = true
		}
	}

	if failed {
		fmt.Println("\nCoverage dropped below a floor, failing build")
		os.Exit(1)
	}
	if raised {
		if err := writeFloors(floorsFile, floors); err != nil {
			log.Fatalf("updating coverage floors: %v", err)
		}
		fmt.Printf("\nFloors raised in %s\n", floorsFile)
	}

	htmlReport := filepath.Join(reportDir, "coverage.html")
	if err := exec.Command("go", "tool", "cover", "-html="+profile, "-o", htmlReport).Run(); err != nil {
		fmt.Printf("Warning: could not generate HTML report: %v\n", err)
	} else {
		fmt.Printf("\nHTML coverage report: %s\n", htmlReport)
	}
	fmt.Println("\nCoverage check passed!")
}

func goTest(dir string, args ...string) {
	cmd := exec.Command("go", append([]string{"test"}, args...)...)
	cmd.Dir = dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		log.Fatalf("go test %s: %v", strings.Join(args, " "), err)
	}
}

// parseProfile sums statement counts per package, keyed by the package path
// relative to the module.
//
// Profile lines look like
//
//	github.com/ae-archive/vae/internal/codec/flac.go:104.49,110.2 3 1
func parseProfile(file, module string) (map[string]counts, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := make(map[string]counts)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "mode:") || line == "" || isExcluded(line) {
			continue
		}
		name, rest, ok := strings.Cut(line, ":")
		fields := strings.Fields(rest)
		if !ok || len(fields) != 3 {
			return nil, fmt.Errorf("unexpected profile line %q", line)
		}
		stmts, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("statement count in %q: %w", line, err)
		}
		hits, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("hit count in %q: %w", line, err)
		}
		pkg := strings.TrimPrefix(path.Dir(name), module+"/")
		c := out[pkg]
		c.total += stmts
		if hits > 0 {
			c.covered += stmts
		}
		out[pkg] = c
	}
	return out, sc.Err()
}

func isExcluded(line string) bool {
	for _, frag := range excluded {
		if strings.Contains(line, frag) {
			return true
		}
	}
	return false
}

// readFloors reads "<package> <percent>" lines. Blank lines and # comments
// are skipped.
func readFloors(file string) (map[string]int, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	floors := make(map[string]int)
	for n, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("%s:%d: want \"<package> <percent>\"", file, n+1)
		}
		v, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", file, n+1, err)
		}
		floors[fields[0]] = v
	}
	if _, ok := floors[totalKey]; !ok {
		return nil, fmt.Errorf("%s: missing %q floor", file, totalKey)
	}
	return floors, nil
}

func writeFloors(file string, floors map[string]int) error {
	var sb strings.Builder
	sb.WriteString("# Statement coverage floors, raised by go run ./scripts/coverage.\n")
	fmt.Fprintf(&sb, "%s %d\n", totalKey, floors[totalKey])
	for _, pkg := range slices.Sorted(maps.Keys(floors)) {
		if pkg != totalKey {
			fmt.Fprintf(&sb, "%s %d\n", pkg, floors[pkg])
		}
	}
	return os.WriteFile(file, []byte(sb.String()), 0o644)
}

func modulePath(root string) (string, error) {
	data, err := os.ReadFile(filepath.Join(root, "go.mod"))
	if err != nil {
		return "", err
	}
	for line := range strings.SplitSeq(string(data), "\n") {
		if mod, ok := strings.CutPrefix(strings.TrimSpace(line), "module "); ok {
			return strings.TrimSpace(mod), nil
		}
	}
	return "", fmt.Errorf("no module directive in go.mod")
}

func thisFile() string {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		log.Fatal("could not determine script directory")
	}
	return filename
}

func findProjectRoot() string {
	dir := filepath.Dir(thisFile())
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
