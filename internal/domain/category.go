package domain

// Display categories for status grouping. The classifier is keyed on site
// name, not URL, and is the single copy shared by the API and the snapshot
// renderer.
const (
	CategoryGovernment     = "government"
	CategoryMinistries     = "ministries"
	CategoryEducation      = "education"
	CategoryTransportation = "transportation"
	CategoryUtilities      = "utilities"
	CategoryEmergency      = "emergency"
	CategoryBanking        = "banking"
	CategoryMedia          = "media"
	CategoryWeather        = "weather"
	CategorySports         = "sports"
	CategoryOther          = "other"
)

var categoryMembers = map[string][]string{
	CategoryGovernment: {
		"gov.gr", "gsis", "efka", "oaed", "ktimatologio", "passport",
		"dypa", "aade", "et.gr", "1555",
	},
	CategoryMinistries: {
		"minedu", "minhealth", "minfin", "mindigital", "ypes",
		"mfa", "mintour", "minagric",
	},
	CategoryEducation: {
		"uoa", "auth", "ntua", "upatras", "uoc", "eudoxus", "panteion",
	},
	CategoryTransportation: {
		"oasa", "hellenictrain", "oasth", "athensairport", "ktel",
		"attiki-odos",
	},
	CategoryUtilities: {
		"dei", "eydap", "deddie", "depa", "eyath",
	},
	CategoryEmergency: {
		"ekab", "fireservice", "astynomia", "civilprotection", "112",
	},
	CategoryBanking: {
		"bankofgreece", "nbg", "alpha", "piraeus", "eurobank",
	},
	CategoryMedia: {
		"ert", "in.gr", "skai", "kathimerini", "naftemporiki", "protothema",
	},
	CategoryWeather: {
		"emy", "meteo",
	},
	CategorySports: {
		"gga", "epo", "esake",
	},
}

var categoryByName = func() map[string]string {
	m := make(map[string]string)
	for cat, names := range categoryMembers {
		for _, n := range names {
			m[n] = cat
		}
	}
	return m
}()

// CategoryOf maps a site name to its display category. Unknown names fall
// through to "other".
func CategoryOf(siteName string) string {
	if c, ok := categoryByName[siteName]; ok {
		return c
	}
	return CategoryOther
}

// Categories lists every known category, "other" last.
func Categories() []string {
	return []string{
		CategoryGovernment, CategoryMinistries, CategoryEducation,
		CategoryTransportation, CategoryUtilities, CategoryEmergency,
		CategoryBanking, CategoryMedia, CategoryWeather, CategorySports,
		CategoryOther,
	}
}
