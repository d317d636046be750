package merging

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// WriteHKL writes the merged table in fixed-width SHELX HKLF format:
// three 4-wide index columns and two 8.2f columns holding the proxy
// amplitude and its sigma. Lines are ordered by ascending (h, k, l)
// regardless of consensus rank, and a zero line terminates the file,
// as downstream refinement programs expect.
func WriteHKL(w io.Writer, t *Table) error {
	ordered := make([]Entry, len(t.Entries))
	copy(ordered, t.Entries)
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.H != b.H {
			return a.H < b.H
		}
		if a.K != b.K {
			return a.K < b.K
		}
		return a.L < b.L
	})

	bw := bufio.NewWriter(w)
	for _, e := range ordered {
		if e.H < -999 || e.H > 9999 || e.K < -999 || e.K > 9999 || e.L < -999 || e.L > 9999 {
			return fmt.Errorf("merging: index (%d %d %d) overflows the 4-column format", e.H, e.K, e.L)
		}
		if _, err := fmt.Fprintf(bw, "%4d%4d%4d%8.2f%8.2f\n", e.H, e.K, e.L, e.Proxy, e.Sigma); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(bw, "%4d%4d%4d%8.2f%8.2f\n", 0, 0, 0, 0.0, 0.0); err != nil {
		return err
	}
	return bw.Flush()
}

// ReadHKL parses a fixed-width HKL file back into entries, stopping at
// the zero terminator line. The file stores no consensus ranks, so
// Rank is left zero.
func ReadHKL(r io.Reader) ([]Entry, error) {
	var entries []Entry
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Text()
		if strings.TrimSpace(raw) == "" {
			continue
		}
		if len(raw) < 28 {
			return nil, fmt.Errorf("merging: hkl line %d too short (%d chars)", line, len(raw))
		}
		h, err1 := atoiField(raw[0:4])
		k, err2 := atoiField(raw[4:8])
		l, err3 := atoiField(raw[8:12])
		proxy, err4 := atofField(raw[12:20])
		sigma, err5 := atofField(raw[20:28])
		for _, err := range []error{err1, err2, err3, err4, err5} {
			if err != nil {
				return nil, fmt.Errorf("merging: hkl line %d: %w", line, err)
			}
		}
		if h == 0 && k == 0 && l == 0 {
			break
		}
		entries = append(entries, Entry{
			H: h, K: k, L: l,
			Proxy: proxy,
			Sigma: sigma,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("merging: %w", err)
	}
	return entries, nil
}

func atoiField(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}

func atofField(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
