package search

import (
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/asheshgoplani/vpn-deck/internal/intent"
)

// CountryNamer names countries for display and matching.
type CountryNamer interface {
	CountryName(country intent.CountryID, locale language.Tag) string
}

// DisplayNames names countries from the CLDR data in golang.org/x/text.
type DisplayNames struct{}

// CountryName returns the country name in locale, then in English, then the bare code.
func (DisplayNames) CountryName(country intent.CountryID, locale language.Tag) string {
	region, err := language.ParseRegion(country.Code())
	if err != nil {
		return country.String()
	}
	if namer := display.Regions(locale); namer != nil {
		if name := namer.Name(region); name != "" {
			return name
		}
	}
	if name := display.English.Regions().Name(region); name != "" {
		return name
	}
	return country.String()
}

// EnglishCountryName is the canonical name matched alongside the localized one.
func EnglishCountryName(n CountryNamer, country intent.CountryID) string {
	return n.CountryName(country, language.AmericanEnglish)
}
