package domain

// SeedSite is an entry of the built-in registry of monitored Greek sites.
// A zero MaxRedirects means the default depth.
type SeedSite struct {
	Name         string
	URL          string
	MaxRedirects int
}

// DefaultSites returns the built-in registry. Seeding goes through the
// normal idempotent add path, so re-running a server against an existing
// database does not duplicate entries.
func DefaultSites() []SeedSite {
	return []SeedSite{
		{Name: "gov.gr", URL: "https://www.gov.gr"},
		{Name: "gsis", URL: "https://www.gsis.gr"},
		{Name: "efka", URL: "https://www.efka.gov.gr"},
		{Name: "aade", URL: "https://www.aade.gr"},
		{Name: "dypa", URL: "https://www.dypa.gov.gr"},
		{Name: "ktimatologio", URL: "https://www.ktimatologio.gr"},
		{Name: "passport", URL: "https://www.passport.gov.gr", MaxRedirects: 10},
		{Name: "minedu", URL: "https://www.minedu.gov.gr"},
		{Name: "minhealth", URL: "https://www.moh.gov.gr"},
		{Name: "mindigital", URL: "https://www.mindigital.gr"},
		{Name: "mfa", URL: "https://www.mfa.gr"},
		{Name: "uoa", URL: "https://www.uoa.gr"},
		{Name: "auth", URL: "https://www.auth.gr"},
		{Name: "ntua", URL: "https://www.ntua.gr"},
		{Name: "eudoxus", URL: "https://eudoxus.gr"},
		{Name: "oasa", URL: "https://www.oasa.gr"},
		{Name: "hellenictrain", URL: "https://www.hellenictrain.gr"},
		{Name: "athensairport", URL: "https://www.aia.gr"},
		{Name: "dei", URL: "https://www.dei.gr"},
		{Name: "eydap", URL: "https://www.eydap.gr"},
		{Name: "deddie", URL: "https://deddie.gr"},
		{Name: "ekab", URL: "https://www.ekab.gr"},
		{Name: "fireservice", URL: "https://www.fireservice.gr"},
		{Name: "astynomia", URL: "https://www.astynomia.gr", MaxRedirects: 10},
		{Name: "bankofgreece", URL: "https://www.bankofgreece.gr"},
		{Name: "nbg", URL: "https://www.nbg.gr"},
		{Name: "alpha", URL: "https://www.alpha.gr"},
		{Name: "piraeus", URL: "https://www.piraeusbank.gr"},
		{Name: "eurobank", URL: "https://www.eurobank.gr"},
		{Name: "ert", URL: "https://www.ert.gr"},
		{Name: "in.gr", URL: "https://www.in.gr"},
		{Name: "skai", URL: "https://www.skai.gr"},
		{Name: "kathimerini", URL: "https://www.kathimerini.gr"},
		{Name: "emy", URL: "http://www.emy.gr"},
		{Name: "meteo", URL: "https://www.meteo.gr"},
		{Name: "gga", URL: "https://gga.gov.gr"},
	}
}
