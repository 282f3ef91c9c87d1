package catalog

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// NormalizedMutation is a missense variant resolved to canonical HGVS
// protein notation, with equivalent notations for indexing.
type NormalizedMutation struct {
	Raw         string `json:"raw"`
	HGVSProtein string `json:"hgvs_p"` // e.g. "p.Gly12Asp"
	Short       string `json:"short"`  // e.g. "G12D"
	Position    int    `json:"position"`
	RefAA       string `json:"ref_aa"` // three-letter, e.g. "Gly"
	AltAA       string `json:"alt_aa"` // three-letter, e.g. "Asp"
	RsID        string `json:"rs_id,omitempty"`
}

// Notations returns every equivalent notation for indexing: short form,
// HGVS protein with and without prefix, and rsID when known.
func (m *NormalizedMutation) Notations() []string {
	out := []string{m.Short, m.HGVSProtein, strings.TrimPrefix(m.HGVSProtein, "p.")}
	if m.RsID != "" {
		out = append(out, m.RsID)
	}
	return out
}

var aa1to3 = map[string]string{
	"A": "Ala", "C": "Cys", "D": "Asp", "E": "Glu", "F": "Phe",
	"G": "Gly", "H": "His", "I": "Ile", "K": "Lys", "L": "Leu",
	"M": "Met", "N": "Asn", "P": "Pro", "Q": "Gln", "R": "Arg",
	"S": "Ser", "T": "Thr", "V": "Val", "W": "Trp", "Y": "Tyr",
	"*": "Ter",
}

var aa3to1 = func() map[string]string {
	m := make(map[string]string, len(aa1to3))
	for one, three := range aa1to3 {
		m[strings.ToLower(three)] = one
	}
	return m
}()

// rsIDTable maps (gene symbol, HGVS protein) to dbSNP rsIDs for
// well-characterised hotspot variants.
var rsIDTable = map[[2]string]string{
	{"KRAS", "p.Gly12Asp"}: "rs121913529",
	{"KRAS", "p.Gly12Val"}: "rs121913530",
	{"KRAS", "p.Gly12Cys"}: "rs121913527",
	{"KRAS", "p.Gly12Arg"}: "rs121913528",
	{"KRAS", "p.Gly12Ser"}: "rs121913529",
	{"KRAS", "p.Gly13Asp"}: "rs112445441",
	{"KRAS", "p.Gln61His"}: "rs121913240",
	{"KRAS", "p.Gln61Leu"}: "rs121913240",
	{"NRAS", "p.Gln61Lys"}: "rs121913254",
	{"NRAS", "p.Gly12Asp"}: "rs121913239",
	{"BRAF", "p.Val600Glu"}: "rs113488022",
	{"BRAF", "p.Val600Lys"}: "rs121913227",
	{"TP53", "p.Arg175His"}: "rs28934578",
	{"TP53", "p.Arg248Trp"}: "rs28934578",
}

var (
	// G12D, V600E, R213*
	reShortVariant = regexp.MustCompile(`^([A-Z*])(\d+)([A-Z*])$`)
	// p.Gly12Asp, p.G12D, Gly12Asp with optional "p." prefix, 1- or 3-letter codes
	reHGVSProtein = regexp.MustCompile(`^(?:p\.)?([A-Z][a-z]{2}|[A-Z*])(\d+)([A-Z][a-z]{2}|[A-Z*])$`)
	// c.35G>A
	reHGVSCoding = regexp.MustCompile(`^c\.\d+[ACGT]>[ACGT]$`)
	// rs121913529
	reRsID = regexp.MustCompile(`^rs\d+$`)
)

// NormalizeMutation parses an informal or HGVS mutation string into its
// canonical protein notation. The gene symbol is optional and used only for
// rsID lookup. Returns nil when the input is not a missense/nonsense variant
// (frameshifts, deletions and coding-only notations are left unnormalized).
func NormalizeMutation(raw, gene string) *NormalizedMutation {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}

	var refRaw, altRaw, posStr string
	if m := reShortVariant.FindStringSubmatch(trimmed); m != nil {
		refRaw, posStr, altRaw = m[1], m[2], m[3]
	} else if m := reHGVSProtein.FindStringSubmatch(trimmed); m != nil {
		refRaw, posStr, altRaw = m[1], m[2], m[3]
	} else {
		return nil
	}

	ref, ok := resolveAA(refRaw)
	if !ok {
		return nil
	}
	alt, ok := resolveAA(altRaw)
	if !ok {
		return nil
	}
	pos, err := strconv.Atoi(posStr)
	if err != nil {
		return nil
	}

	hgvs := fmt.Sprintf("p.%s%d%s", ref, pos, alt)
	norm := &NormalizedMutation{
		Raw:         trimmed,
		HGVSProtein: hgvs,
		Short:       fmt.Sprintf("%s%d%s", aa3to1[strings.ToLower(ref)], pos, aa3to1[strings.ToLower(alt)]),
		Position:    pos,
		RefAA:       ref,
		AltAA:       alt,
	}
	if gene != "" {
		norm.RsID = rsIDTable[[2]string{strings.ToUpper(gene), hgvs}]
	}
	return norm
}

// resolveAA maps a one- or three-letter amino acid code to the canonical
// three-letter form.
func resolveAA(code string) (string, bool) {
	if len(code) == 1 {
		three, ok := aa1to3[strings.ToUpper(code)]
		return three, ok
	}
	lower := strings.ToLower(code)
	if lower == "stop" {
		return "Ter", true
	}
	if one, ok := aa3to1[lower]; ok {
		return aa1to3[one], true
	}
	return "", false
}

// IsHGVSCoding reports whether the text is a coding-DNA notation (c.35G>A).
func IsHGVSCoding(text string) bool {
	return reHGVSCoding.MatchString(strings.TrimSpace(text))
}

// IsRsID reports whether the text is a dbSNP identifier.
func IsRsID(text string) bool {
	return reRsID.MatchString(strings.TrimSpace(text))
}

// MutationNotations expands a mutation string into every known equivalent
// notation for query construction. Unparseable inputs return the raw string.
func MutationNotations(raw, gene string) []string {
	norm := NormalizeMutation(raw, gene)
	if norm == nil {
		return []string{strings.TrimSpace(raw)}
	}
	return norm.Notations()
}
