package notefile

import (
	"fmt"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// CheckResult describes how a note file survives a decode/encode cycle.
type CheckResult struct {
	Name       string `json:"name"`
	Notes      int    `json:"notes"`
	Links      int    `json:"links"`
	RoundTrips bool   `json:"round_trips"`
	Insertions int    `json:"insertions"`
	Deletions  int    `json:"deletions"`
	Patch      string `json:"patch,omitempty"`
	Canonical  string `json:"-"`
}

// Check decodes text, encodes the result again and diffs the canonical
// form against the input. Decode errors are returned as-is.
func Check(name, text string) (*CheckResult, error) {
	nf, err := Decode(name, text)
	if err != nil {
		return nil, err
	}

	canonical := Encode(nf)
	res := &CheckResult{
		Name:       name,
		Notes:      len(nf.Notes),
		Links:      nf.LinkCount(),
		RoundTrips: canonical == text,
		Canonical:  canonical,
	}

	if res.RoundTrips {
		return res, nil
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(text, canonical, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			res.Insertions += utf8.RuneCountInString(d.Text)
		case diffmatchpatch.DiffDelete:
			res.Deletions += utf8.RuneCountInString(d.Text)
		}
	}

	res.Patch = dmp.PatchToText(dmp.PatchMake(text, diffs))

	return res, nil
}

// Summary returns a one-line description of the result.
func (r *CheckResult) Summary() string {
	if r.RoundTrips {
		return fmt.Sprintf("%s: ok (%d notes, %d links)", r.Name, r.Notes, r.Links)
	}
	return fmt.Sprintf("%s: differs from canonical form (+%d -%d chars, %d notes, %d links)",
		r.Name, r.Insertions, r.Deletions, r.Notes, r.Links)
}
