package catalog

import "strings"

// hgncRecord is one row of the built-in HGNC alias table.
type hgncRecord struct {
	hgncID   string
	symbol   string
	name     string
	aliases  []string
	ensembl  string
	uniprot  string
}

// hgncSeed covers the oncology gene panel the evidence adapters ship data
// for. Deployments extend the catalog from a full HGNC dump at ingest time.
var hgncSeed = []hgncRecord{
	{"HGNC:6407", "KRAS", "KRAS proto-oncogene, GTPase", []string{"KRAS2", "RASK2", "K-RAS", "KI-RAS", "c-K-ras"}, "ENSG00000133703", "P01116"},
	{"HGNC:7989", "NRAS", "NRAS proto-oncogene, GTPase", []string{"N-RAS", "NRAS1"}, "ENSG00000213281", "P01111"},
	{"HGNC:5173", "HRAS", "HRAS proto-oncogene, GTPase", []string{"H-RAS", "HRAS1", "c-H-ras"}, "ENSG00000174775", "P01112"},
	{"HGNC:1097", "BRAF", "B-Raf proto-oncogene, serine/threonine kinase", []string{"BRAF1", "B-RAF1", "B-raf"}, "ENSG00000157764", "P15056"},
	{"HGNC:11998", "TP53", "tumor protein p53", []string{"p53", "LFS1", "TRP53"}, "ENSG00000141510", "P04637"},
	{"HGNC:3236", "EGFR", "epidermal growth factor receptor", []string{"ERBB", "ERBB1", "HER1"}, "ENSG00000146648", "P00533"},
	{"HGNC:3430", "ERBB2", "erb-b2 receptor tyrosine kinase 2", []string{"HER2", "HER-2", "NEU", "CD340"}, "ENSG00000141736", "P04626"},
	{"HGNC:6973", "MYC", "MYC proto-oncogene, bHLH transcription factor", []string{"c-Myc", "MYCC", "bHLHe39"}, "ENSG00000136997", "P01106"},
	{"HGNC:9588", "PTEN", "phosphatase and tensin homolog", []string{"MMAC1", "TEP1"}, "ENSG00000171862", "P60484"},
	{"HGNC:8975", "PIK3CA", "phosphatidylinositol-4,5-bisphosphate 3-kinase catalytic subunit alpha", []string{"p110alpha", "PI3K-alpha"}, "ENSG00000121879", "P42336"},
	{"HGNC:1773", "CDK4", "cyclin dependent kinase 4", []string{"PSK-J3"}, "ENSG00000135446", "P11802"},
	{"HGNC:1777", "CDK6", "cyclin dependent kinase 6", []string{"PLSTIRE"}, "ENSG00000105810", "Q00534"},
	{"HGNC:1787", "CDKN2A", "cyclin dependent kinase inhibitor 2A", []string{"p16", "INK4A", "MTS1", "ARF"}, "ENSG00000147889", "P42771"},
	{"HGNC:11389", "STK11", "serine/threonine kinase 11", []string{"LKB1", "PJS"}, "ENSG00000118046", "Q15831"},
	{"HGNC:11026", "SMAD4", "SMAD family member 4", []string{"DPC4", "MADH4"}, "ENSG00000141646", "Q13485"},
	{"HGNC:6342", "KDR", "kinase insert domain receptor", []string{"VEGFR2", "FLK1", "CD309"}, "ENSG00000128052", "P35968"},
	{"HGNC:7029", "MET", "MET proto-oncogene, receptor tyrosine kinase", []string{"HGFR", "c-Met"}, "ENSG00000105976", "P08581"},
	{"HGNC:427", "ALK", "ALK receptor tyrosine kinase", []string{"CD246", "NBLST3"}, "ENSG00000171094", "Q9UM73"},
	{"HGNC:11730", "TERT", "telomerase reverse transcriptase", []string{"hTERT", "TCS1"}, "ENSG00000164362", "O14746"},
	{"HGNC:6770", "MDM2", "MDM2 proto-oncogene", []string{"HDM2"}, "ENSG00000135679", "Q00987"},
	{"HGNC:7559", "MTAP", "methylthioadenosine phosphorylase", []string{"MSAP", "c86fus"}, "ENSG00000099810", "Q13126"},
	{"HGNC:23805", "PRMT5", "protein arginine methyltransferase 5", []string{"JBP1", "SKB1", "HRMT1L5"}, "ENSG00000100462", "O14744"},
	{"HGNC:12825", "WRN", "WRN RecQ like helicase", []string{"RECQ3", "RECQL2"}, "ENSG00000165392", "Q14191"},
	{"HGNC:11110", "SOS1", "SOS Ras/Rac guanine nucleotide exchange factor 1", []string{"GINGF"}, "ENSG00000115904", "Q07889"},
	{"HGNC:9829", "PTPN11", "protein tyrosine phosphatase non-receptor type 11", []string{"SHP2", "SHP-2", "PTP2C"}, "ENSG00000179295", "Q06124"},
	// Short symbols that collide with English words; kept so the ambiguity
	// guard has something real to guard.
	{"HGNC:1516", "CAT", "catalase", nil, "ENSG00000121691", "P04040"},
	{"HGNC:10820", "SET", "SET nuclear proto-oncogene", []string{"2PP2A", "I2PP2A"}, "ENSG00000119335", "Q01105"},
	{"HGNC:6913", "MAX", "MYC associated factor X", []string{"bHLHd4"}, "ENSG00000125952", "P61244"},
}

// ambiguousSymbols are gene symbols that collide with common English words.
// Mentions of these require contextual co-occurrence evidence before being
// emitted (see internal/extract).
var ambiguousSymbols = map[string]bool{
	"CAT": true, "SET": true, "MAX": true, "MICE": true, "WAS": true,
	"CELL": true, "IMPACT": true, "LARGE": true, "REST": true, "SHE": true,
	"ATM": true,
}

// IsAmbiguousSymbol reports whether a gene symbol needs contextual evidence
// before a mention is emitted.
func IsAmbiguousSymbol(symbol string) bool {
	return ambiguousSymbols[strings.ToUpper(symbol)]
}

// LoadHGNC registers the built-in HGNC gene table into the catalog and
// returns the number of genes registered.
func LoadHGNC(c *Catalog) int {
	for _, rec := range hgncSeed {
		c.RegisterOrGet(TypeGene, rec.hgncID, rec.symbol, append([]string{rec.symbol}, rec.aliases...), map[string]string{
			"ensembl": rec.ensembl,
			"uniprot": rec.uniprot,
		})
	}
	return len(hgncSeed)
}

// GeneAliases returns the known aliases for a gene symbol, including the
// symbol itself, for discovery query expansion. Unknown symbols return just
// the symbol.
func GeneAliases(c *Catalog, symbol string) []string {
	e, _, err := c.Resolve(TypeGene, symbol)
	if err != nil {
		return []string{symbol}
	}
	out := []string{e.Name}
	out = append(out, e.Aliases...)
	return dedupeStrings(out)
}

// LoadOncoTree registers cancer-type entities for every node of the tree.
func LoadOncoTree(c *Catalog, t *OncoTree) int {
	n := 0
	for code, node := range t.nodes {
		aliases := append([]string{node.Name}, node.Synonyms...)
		ext := map[string]string{}
		if node.ICDO != "" {
			ext["icdo"] = node.ICDO
		}
		c.RegisterOrGet(TypeCancerType, code, node.Name, aliases, ext)
		n++
	}
	return n
}
