// Package geo maps US state codes to approximate geographic centers and
// answers "which states are near this one" for regional content matching.
package geo

import (
	"math"
	"sort"
	"strings"
)

// Coordinate is a lat/lon pair in degrees.
type Coordinate struct {
	Lat float64
	Lon float64
}

// DefaultMaxMiles is the radius used when widening a user's region to
// nearby states.
const DefaultMaxMiles = 500.0

// earthRadiusMiles for haversine distances.
const earthRadiusMiles = 3959.0

// StateCoordinates maps USPS codes to approximate state centers.
var StateCoordinates = map[string]Coordinate{
	"AL": {32.806671, -86.791130}, "AK": {61.370716, -152.404419}, "AZ": {33.729759, -111.431221},
	"AR": {34.969704, -92.373123}, "CA": {36.116203, -119.681564}, "CO": {39.059811, -105.311104},
	"CT": {41.597782, -72.755371}, "DE": {39.318523, -75.507141}, "FL": {27.766279, -81.686783},
	"GA": {33.040619, -83.643074}, "HI": {21.094318, -157.498337}, "ID": {44.240459, -114.478828},
	"IL": {40.349457, -88.986137}, "IN": {39.849426, -86.258278}, "IA": {42.011539, -93.210526},
	"KS": {38.526600, -96.726486}, "KY": {37.668140, -84.670067}, "LA": {31.169546, -91.867805},
	"ME": {44.323535, -69.765261}, "MD": {39.063946, -76.802101}, "MA": {42.230171, -71.530106},
	"MI": {43.326618, -84.536095}, "MN": {45.694454, -93.900192}, "MS": {32.741646, -89.678696},
	"MO": {38.572954, -92.189283}, "MT": {46.921925, -110.454353}, "NE": {41.125370, -98.268082},
	"NV": {38.313515, -117.055374}, "NH": {43.452492, -71.563896}, "NJ": {40.298904, -74.521011},
	"NM": {34.840515, -106.248482}, "NY": {42.165726, -74.948051}, "NC": {35.630066, -79.806419},
	"ND": {47.528912, -99.784012}, "OH": {40.388783, -82.764915}, "OK": {35.565342, -96.928917},
	"OR": {44.572021, -122.070938}, "PA": {40.590752, -77.209755}, "RI": {41.680893, -71.511780},
	"SC": {33.856892, -80.945007}, "SD": {44.299782, -99.438828}, "TN": {35.747845, -86.692345},
	"TX": {31.054487, -97.563461}, "UT": {40.150032, -111.892622}, "VT": {44.045876, -72.710686},
	"VA": {37.769337, -78.169968}, "WA": {47.400902, -121.490494}, "WV": {38.491226, -80.954453},
	"WI": {44.268543, -89.616508}, "WY": {42.755966, -107.302490}, "DC": {38.907192, -77.036873},
}

// StateNames maps lowercase full state names to USPS codes, for extracting
// region mentions from page text.
var StateNames = map[string]string{
	"alabama": "AL", "alaska": "AK", "arizona": "AZ", "arkansas": "AR",
	"california": "CA", "colorado": "CO", "connecticut": "CT", "delaware": "DE",
	"florida": "FL", "georgia": "GA", "hawaii": "HI", "idaho": "ID",
	"illinois": "IL", "indiana": "IN", "iowa": "IA", "kansas": "KS",
	"kentucky": "KY", "louisiana": "LA", "maine": "ME", "maryland": "MD",
	"massachusetts": "MA", "michigan": "MI", "minnesota": "MN", "mississippi": "MS",
	"missouri": "MO", "montana": "MT", "nebraska": "NE", "nevada": "NV",
	"new hampshire": "NH", "new jersey": "NJ", "new mexico": "NM", "new york": "NY",
	"north carolina": "NC", "north dakota": "ND", "ohio": "OH", "oklahoma": "OK",
	"oregon": "OR", "pennsylvania": "PA", "rhode island": "RI", "south carolina": "SC",
	"south dakota": "SD", "tennessee": "TN", "texas": "TX", "utah": "UT",
	"vermont": "VT", "virginia": "VA", "washington": "WA", "west virginia": "WV",
	"wisconsin": "WI", "wyoming": "WY", "washington dc": "DC", "district of columbia": "DC",
}

// IsState reports whether code is a known state code.
func IsState(code string) bool {
	_, ok := StateCoordinates[strings.ToUpper(code)]
	return ok
}

// CodeForName returns the USPS code for a full state name, if known.
func CodeForName(name string) (string, bool) {
	code, ok := StateNames[strings.ToLower(strings.TrimSpace(name))]
	return code, ok
}

// Haversine returns the great-circle distance between two coordinates in
// miles.
func Haversine(a, b Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusMiles * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Distance returns the center-to-center distance between two states in
// miles. Unknown codes yield false.
func Distance(stateA, stateB string) (float64, bool) {
	a, okA := StateCoordinates[strings.ToUpper(stateA)]
	b, okB := StateCoordinates[strings.ToUpper(stateB)]
	if !okA || !okB {
		return 0, false
	}
	return Haversine(a, b), true
}

// Nearby returns the states whose centers lie within maxMiles of the given
// state's center. The state itself comes first; the rest are ordered
// nearest-first. Unknown state codes yield nil.
func Nearby(state string, maxMiles float64) []string {
	state = strings.ToUpper(state)
	center, ok := StateCoordinates[state]
	if !ok {
		return nil
	}

	type entry struct {
		code string
		dist float64
	}
	var near []entry
	for code, coord := range StateCoordinates {
		if code == state {
			continue
		}
		if d := Haversine(center, coord); d <= maxMiles {
			near = append(near, entry{code, d})
		}
	}
	sort.Slice(near, func(i, j int) bool {
		if near[i].dist != near[j].dist {
			return near[i].dist < near[j].dist
		}
		return near[i].code < near[j].code
	})

	out := make([]string, 0, len(near)+1)
	out = append(out, state)
	for _, e := range near {
		out = append(out, e.code)
	}
	return out
}
