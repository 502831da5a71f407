package evidence

import (
	"os"
	"regexp"
	"strings"
)

// primaryDomains is the curated set of canonical domains treated as primary
// sources unconditionally: statistical agencies, peer-reviewed indices,
// treaty organizations, regulators, central banks.
var primaryDomains = map[string]struct{}{
	// Intergovernmental and statistical agencies
	"unwto.org": {}, "iata.org": {}, "wttc.org": {}, "oecd.org": {},
	"imf.org": {}, "worldbank.org": {}, "ec.europa.eu": {}, "who.int": {},
	"un.org": {}, "unesco.org": {}, "ilo.org": {}, "eurostat.europa.eu": {},
	"bls.gov": {}, "census.gov": {}, "ons.gov.uk": {}, "destatis.de": {},
	"stlouisfed.org": {},
	// Central banks and financial supervisors
	"federalreserve.gov": {}, "ecb.europa.eu": {}, "bis.org": {},
	"sec.gov": {}, "esma.europa.eu": {},
	// Scholarly publishers and indices
	"nature.com": {}, "science.org": {}, "nejm.org": {}, "thelancet.com": {},
	"ieee.org": {}, "acm.org": {}, "arxiv.org": {}, "pubmed.gov": {},
	"ncbi.nlm.nih.gov": {}, "europepmc.org": {}, "doi.org": {},
	"cochranelibrary.com": {}, "plos.org": {}, "pnas.org": {}, "bmj.com": {},
	// Regulators and standards bodies
	"fda.gov": {}, "ema.europa.eu": {}, "nist.gov": {}, "iso.org": {},
	"cdc.gov": {}, "nih.gov": {}, "epa.gov": {}, "nps.gov": {},
}

// PrimaryOrgs are authoritative organizations whose pages count as primary
// only when accompanied by numeric content (promotion happens in the
// enrichment stage, before metric computation).
var PrimaryOrgs = map[string]struct{}{
	"weforum.org": {}, "statista.com": {}, "mckinsey.com": {},
	"deloitte.com": {}, "pwc.com": {}, "gallup.com": {},
	"pewresearch.org": {}, "brookings.edu": {}, "rand.org": {},
	"oxfordeconomics.com": {}, "eiu.com": {},
}

var govEduPattern = regexp.MustCompile(`(^|\.)((gov|edu)|gov\.[a-z]{2}|ac\.uk|edu\.[a-z]{2})$`)

// IsPrimaryDomain reports whether a canonical domain belongs to the curated
// primary set or matches the .gov/.edu/.ac.uk patterns.
func IsPrimaryDomain(domain string) bool {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return false
	}
	if _, ok := primaryDomains[domain]; ok {
		return true
	}
	return govEduPattern.MatchString(domain)
}

// IsPrimaryOrg reports membership in the numeric-gated authoritative set.
func IsPrimaryOrg(domain string) bool {
	_, ok := PrimaryOrgs[strings.ToLower(strings.TrimSpace(domain))]
	return ok
}

// PrimaryHostsForIntent returns the primary hosts worth targeting with
// site-scoped gap-fill searches for a given intent tag.
func PrimaryHostsForIntent(intent string) []string {
	switch intent {
	case "stats":
		return []string{"oecd.org", "imf.org", "worldbank.org", "ec.europa.eu", "bls.gov", "stlouisfed.org"}
	case "medical":
		return []string{"pubmed.gov", "who.int", "cdc.gov", "nih.gov", "ema.europa.eu", "cochranelibrary.com"}
	case "academic":
		return []string{"arxiv.org", "nature.com", "science.org", "ieee.org", "acm.org"}
	case "travel":
		return []string{"unwto.org", "iata.org", "wttc.org", "worldbank.org"}
	case "regulatory":
		return []string{"sec.gov", "ec.europa.eu", "esma.europa.eu", "nist.gov", "federalreserve.gov"}
	default:
		return []string{"oecd.org", "worldbank.org", "un.org", "who.int"}
	}
}

// TrustedDomains returns the trusted set used by the contradiction filter:
// the curated primary set plus any extra domains from TRUSTED_DOMAINS
// (comma-separated canonical labels).
func TrustedDomains() map[string]struct{} {
	set := make(map[string]struct{}, len(primaryDomains)+8)
	for d := range primaryDomains {
		set[d] = struct{}{}
	}
	for _, d := range strings.Split(os.Getenv("TRUSTED_DOMAINS"), ",") {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			set[d] = struct{}{}
		}
	}
	return set
}

// IsTrusted reports whether a canonical domain is in the trusted set.
func IsTrusted(domain string, trusted map[string]struct{}) bool {
	if _, ok := trusted[strings.ToLower(domain)]; ok {
		return true
	}
	return govEduPattern.MatchString(strings.ToLower(domain))
}

// domainPriors maps canonical domains to discipline-specific credibility
// priors used in the confidence recompute. Unlisted domains get 0.5.
var domainPriors = map[string]float64{
	"nature.com": 0.95, "science.org": 0.95, "nejm.org": 0.95,
	"thelancet.com": 0.95, "bmj.com": 0.9, "pnas.org": 0.9,
	"pubmed.gov": 0.9, "europepmc.org": 0.85, "arxiv.org": 0.75,
	"oecd.org": 0.9, "imf.org": 0.9, "worldbank.org": 0.9,
	"ec.europa.eu": 0.85, "who.int": 0.9, "un.org": 0.85,
	"unwto.org": 0.9, "iata.org": 0.85, "wttc.org": 0.8,
	"federalreserve.gov": 0.9, "ecb.europa.eu": 0.9, "bis.org": 0.9,
	"sec.gov": 0.9, "nist.gov": 0.9, "fda.gov": 0.9, "cdc.gov": 0.9,
	"wikipedia.org": 0.65, "wikidata.org": 0.6,
	"reuters.com": 0.8, "apnews.com": 0.8, "bbc.co.uk": 0.75,
	"statista.com": 0.7, "pewresearch.org": 0.8, "gallup.com": 0.75,
}

// DomainPrior returns the credibility prior for a canonical domain.
func DomainPrior(domain string) float64 {
	if p, ok := domainPriors[strings.ToLower(domain)]; ok {
		return p
	}
	if IsPrimaryDomain(domain) {
		return 0.8
	}
	return 0.5
}
