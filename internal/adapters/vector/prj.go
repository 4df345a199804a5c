package vector

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/jobrunner/geolayers/internal/domain"
)

var (
	wktRoot      = regexp.MustCompile(`^\s*([A-Za-z_]+)\s*\[\s*"([^"]*)"`)
	wktAuthority = regexp.MustCompile(`(?i)(?:AUTHORITY|ID)\s*\[\s*"EPSG"\s*,\s*"?(\d+)"?`)
	utmName      = regexp.MustCompile(`(wgs_?1984|wgs_?84|etrs_?1989|etrs_?89|nad_?1983|nad_?83)_utm_zone_(\d{1,2})([ns])`)
	nameSep      = regexp.MustCompile(`[^a-z0-9]+`)
)

// geographicNames maps normalized geographic CRS names to EPSG codes.
var geographicNames = map[string]int{
	"gcs_wgs_1984":            domain.SRIDWGS84,
	"wgs_84":                  domain.SRIDWGS84,
	"wgs84":                   domain.SRIDWGS84,
	"gcs_etrs_1989":           4258,
	"etrs89":                  4258,
	"gcs_north_american_1983": 4269,
	"nad83":                   4269,
}

// projectionEPSG resolves the EPSG code of a .prj WKT string. It prefers the
// authority of the root element and falls back to well-known ESRI and OGC
// names. geographic reports a GEOGCS root, whose coordinates are degrees
// even when the code is unknown.
func projectionEPSG(wkt string) (srid int, geographic bool) {
	m := wktRoot.FindStringSubmatch(wkt)
	if m == nil {
		return 0, false
	}
	kind := strings.ToUpper(m[1])
	geographic = kind == "GEOGCS" || kind == "GEOGCRS" || kind == "GEODCRS"

	if srid := rootAuthority(wkt); srid > 0 {
		return srid, geographic
	}

	name := strings.Trim(nameSep.ReplaceAllString(strings.ToLower(m[2]), "_"), "_")
	if geographic {
		return geographicNames[name], true
	}
	if strings.Contains(name, "web_mercator") || strings.Contains(name, "pseudo_mercator") {
		return domain.SRIDWebMercator, false
	}
	if u := utmName.FindStringSubmatch(name); u != nil {
		zone, _ := strconv.Atoi(u[2])
		if zone < 1 || zone > 60 {
			return 0, false
		}
		switch {
		case strings.HasPrefix(u[1], "wgs"):
			if u[3] == "s" {
				return 32700 + zone, false
			}
			return 32600 + zone, false
		case strings.HasPrefix(u[1], "etrs") && u[3] == "n":
			return 25800 + zone, false
		case strings.HasPrefix(u[1], "nad") && u[3] == "n":
			return 26900 + zone, false
		}
	}
	return 0, false
}

// rootAuthority returns the EPSG authority that is a direct child of the
// root element, skipping those of the nested datum and base CRS.
func rootAuthority(wkt string) int {
	for _, loc := range wktAuthority.FindAllStringSubmatchIndex(wkt, -1) {
		if bracketDepth(wkt[:loc[0]]) != 1 {
			continue
		}
		srid, err := strconv.Atoi(wkt[loc[2]:loc[3]])
		if err == nil {
			return srid
		}
	}
	return 0
}

func bracketDepth(s string) int {
	depth := 0
	quoted := false
	for _, r := range s {
		switch {
		case r == '"':
			quoted = !quoted
		case quoted:
		case r == '[' || r == '(':
			depth++
		case r == ']' || r == ')':
			depth--
		}
	}
	return depth
}
