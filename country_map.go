package main

import "strings"

// CountryParams are the three SerpAPI localization parameters derived
// from a project's ISO-2 country code.
type CountryParams struct {
	GL           string // geolocation
	HL           string // host language
	GoogleDomain string
}

var defaultCountryParams = CountryParams{GL: "us", HL: "en", GoogleDomain: "google.com"}

var countryParams = map[string]CountryParams{
	"US": {GL: "us", HL: "en", GoogleDomain: "google.com"},
	"GB": {GL: "uk", HL: "en", GoogleDomain: "google.co.uk"},
	"IE": {GL: "ie", HL: "en", GoogleDomain: "google.ie"},
	"CA": {GL: "ca", HL: "en", GoogleDomain: "google.ca"},
	"AU": {GL: "au", HL: "en", GoogleDomain: "google.com.au"},
	"NZ": {GL: "nz", HL: "en", GoogleDomain: "google.co.nz"},
	"ES": {GL: "es", HL: "es", GoogleDomain: "google.es"},
	"MX": {GL: "mx", HL: "es", GoogleDomain: "google.com.mx"},
	"AR": {GL: "ar", HL: "es", GoogleDomain: "google.com.ar"},
	"CO": {GL: "co", HL: "es", GoogleDomain: "google.com.co"},
	"CL": {GL: "cl", HL: "es", GoogleDomain: "google.cl"},
	"PE": {GL: "pe", HL: "es", GoogleDomain: "google.com.pe"},
	"PT": {GL: "pt", HL: "pt", GoogleDomain: "google.pt"},
	"BR": {GL: "br", HL: "pt", GoogleDomain: "google.com.br"},
	"FR": {GL: "fr", HL: "fr", GoogleDomain: "google.fr"},
	"BE": {GL: "be", HL: "fr", GoogleDomain: "google.be"},
	"CH": {GL: "ch", HL: "de", GoogleDomain: "google.ch"},
	"DE": {GL: "de", HL: "de", GoogleDomain: "google.de"},
	"AT": {GL: "at", HL: "de", GoogleDomain: "google.at"},
	"IT": {GL: "it", HL: "it", GoogleDomain: "google.it"},
	"NL": {GL: "nl", HL: "nl", GoogleDomain: "google.nl"},
	"SE": {GL: "se", HL: "sv", GoogleDomain: "google.se"},
	"NO": {GL: "no", HL: "no", GoogleDomain: "google.no"},
	"DK": {GL: "dk", HL: "da", GoogleDomain: "google.dk"},
	"FI": {GL: "fi", HL: "fi", GoogleDomain: "google.fi"},
	"PL": {GL: "pl", HL: "pl", GoogleDomain: "google.pl"},
	"CZ": {GL: "cz", HL: "cs", GoogleDomain: "google.cz"},
	"RO": {GL: "ro", HL: "ro", GoogleDomain: "google.ro"},
	"GR": {GL: "gr", HL: "el", GoogleDomain: "google.gr"},
	"HU": {GL: "hu", HL: "hu", GoogleDomain: "google.hu"},
	"TR": {GL: "tr", HL: "tr", GoogleDomain: "google.com.tr"},
	"RU": {GL: "ru", HL: "ru", GoogleDomain: "google.ru"},
	"UA": {GL: "ua", HL: "uk", GoogleDomain: "google.com.ua"},
	"IL": {GL: "il", HL: "he", GoogleDomain: "google.co.il"},
	"AE": {GL: "ae", HL: "ar", GoogleDomain: "google.ae"},
	"SA": {GL: "sa", HL: "ar", GoogleDomain: "google.com.sa"},
	"IN": {GL: "in", HL: "en", GoogleDomain: "google.co.in"},
	"SG": {GL: "sg", HL: "en", GoogleDomain: "google.com.sg"},
	"JP": {GL: "jp", HL: "ja", GoogleDomain: "google.co.jp"},
	"KR": {GL: "kr", HL: "ko", GoogleDomain: "google.co.kr"},
	"ZA": {GL: "za", HL: "en", GoogleDomain: "google.co.za"},
}

// LookupCountry maps an ISO-2 code to SerpAPI parameters. The second
// return is false on unknown codes, which fall back to US/en/google.com;
// the caller decides whether to log the fallback.
func LookupCountry(code string) (CountryParams, bool) {
	params, ok := countryParams[strings.ToUpper(code)]
	if !ok {
		return defaultCountryParams, false
	}
	return params, true
}
