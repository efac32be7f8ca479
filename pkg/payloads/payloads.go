// Package payloads loads password and token corpora for the spray modes from
// SecLists and PayloadsAllTheThings checkouts, with small built-in fallbacks.
package payloads

import (
	"bufio"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const MaxPayloads = 10000

var (
	builtinPasswords = []string{"password", "123456", "admin", "letmein", "qwerty", "password1"}
	builtinTokens    = []string{
		"eyJhbGciOiJub25lIn0.e30.",
		"eyJhbGciOiJIUzI1NiJ9.e30.invalidsig",
		"eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiIxIn0.somesig",
	}
)

// Roots locates the wordlist checkouts. Missing directories are skipped.
type Roots struct {
	SecLists string
	Payloads string
}

func DefaultRoots() Roots {
	return Roots{SecLists: "./SecLists", Payloads: "./PayloadsAllTheThings"}
}

// LoadWordfile returns the non-empty, non-comment lines of path. Unreadable
// files yield nothing.
func LoadWordfile(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}

// GatherFromDir loads every file under dir whose base name matches one of
// patterns (all files when none are given), walking in sorted path order,
// and stops at limit entries.
func GatherFromDir(dir string, patterns []string, limit int) []string {
	if limit <= 0 {
		limit = MaxPayloads
	}
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		return nil
	}

	var files []string
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if matches(d.Name(), patterns) {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)

	var out []string
	for _, f := range files {
		out = append(out, LoadWordfile(f)...)
		if len(out) >= limit {
			return out[:limit]
		}
	}
	return out
}

func matches(name string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}

// Passwords gathers up to limit unique password candidates.
func Passwords(roots Roots, limit int) []string {
	if limit <= 0 {
		limit = 1000
	}
	sources := []struct {
		dir      string
		patterns []string
	}{
		{filepath.Join(roots.SecLists, "Passwords", "Common-Credentials"), []string{"*.txt"}},
		{filepath.Join(roots.SecLists, "Passwords"), []string{"*.txt"}},
		{filepath.Join(roots.Payloads, "JSON Web Token"), []string{"*.txt", "*.lst"}},
		{roots.SecLists, []string{"*.txt"}},
	}

	var candidates []string
	for _, s := range sources {
		if len(candidates) >= limit {
			break
		}
		candidates = append(candidates, GatherFromDir(s.dir, s.patterns, limit)...)
	}
	if len(candidates) == 0 {
		candidates = builtinPasswords
	}
	return dedup(candidates, limit)
}

// JWTTokens gathers up to limit unique token candidates.
func JWTTokens(roots Roots, limit int) []string {
	if limit <= 0 {
		limit = 1000
	}
	var out []string
	for _, dir := range []string{
		filepath.Join(roots.Payloads, "JSON Web Token"),
		filepath.Join(roots.Payloads, "JSON%20Web%20Token"),
	} {
		if len(out) >= limit {
			break
		}
		out = append(out, GatherFromDir(dir, []string{"*.txt", "*.lst"}, limit)...)
	}
	if len(out) < limit {
		out = append(out, GatherFromDir(filepath.Join(roots.SecLists, "Passwords", "Leaked-Databases"), []string{"*.txt"}, limit)...)
	}
	if len(out) == 0 {
		out = builtinTokens
	}
	return dedup(out, limit)
}

// Sample returns n random entries, or all of them when there are at most n.
// The input slice is not modified.
func Sample(list []string, n int, rng *rand.Rand) []string {
	out := append([]string(nil), list...)
	if len(out) <= n {
		return out
	}
	shuffle := rand.Shuffle
	if rng != nil {
		shuffle = rng.Shuffle
	}
	shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out[:n]
}

func dedup(in []string, limit int) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, v := range in {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
		if len(out) >= limit {
			break
		}
	}
	return out
}
