package common

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidIdentifier is returned when a scene identifier does not follow the EnMAP naming convention
var ErrInvalidIdentifier = errors.New("invalid EnMAP identifier")

// Identifier holds the fields of an EnMAP product identifier:
// MMMMMMM-____LLL-DTnnnnnnnnnn_YYYYMMDDTHHMMSSZ_CCC_VPPPPPP_yyyymmddThhmmssZ
// e.g. ENMAP01-____L2A-DT0000173759_20260103T101500Z_003_V010505_20260104T050000Z
type Identifier struct {
	Scene             string // the whole identifier
	Mission           string // ENMAP01
	ProductLevel      string // L2A
	DataTake          string // DT0000173759
	Year              string
	Month             string
	Day               string
	Time              string // HHMMSS, may be empty
	CollectionVersion string // 003
	ProductVersion    string // V010505
	ProcessingTime    string // 20260104T050000Z, may be empty
}

// ParseIdentifier decomposes a scene identifier.
// The identifier is split on '-': the first segment is the mission, the last two are the product level and a remainder.
// The remainder is split on '_' into data-take, acquisition start, collection version, product version and processing time.
// It returns ErrInvalidIdentifier if a segment is missing or if the acquisition date is not 8 digits (YYYYMMDD).
// The date is not checked against the calendar.
// No partial Identifier is ever returned.
func ParseIdentifier(sceneID string) (Identifier, error) {
	parts := strings.Split(sceneID, "-")
	if len(parts) < 3 {
		return Identifier{}, fmt.Errorf("%w: %q: expecting at least 3 '-'-delimited segments", ErrInvalidIdentifier, sceneID)
	}
	segments := strings.Split(parts[len(parts)-1], "_")
	if len(segments) < 4 {
		return Identifier{}, fmt.Errorf("%w: %q: expecting at least 4 '_'-delimited segments after the product level", ErrInvalidIdentifier, sceneID)
	}
	dataTake, start, collection, product := segments[0], segments[1], segments[2], segments[3]
	if parts[0] == "" || dataTake == "" || collection == "" || product == "" {
		return Identifier{}, fmt.Errorf("%w: %q: empty segment", ErrInvalidIdentifier, sceneID)
	}
	if len(start) < 8 {
		return Identifier{}, fmt.Errorf("%w: %q: acquisition date too short: %q", ErrInvalidIdentifier, sceneID, start)
	}
	date := start[0:8]
	if !isDigits(date) {
		return Identifier{}, fmt.Errorf("%w: %q: acquisition date is not numeric: %q", ErrInvalidIdentifier, sceneID, date)
	}

	id := Identifier{
		Scene:             sceneID,
		Mission:           parts[0],
		ProductLevel:      strings.TrimLeft(parts[len(parts)-2], "_"),
		DataTake:          dataTake,
		Year:              date[0:4],
		Month:             date[4:6],
		Day:               date[6:8],
		CollectionVersion: collection,
		ProductVersion:    product,
	}
	if len(start) >= 15 && start[8] == 'T' {
		id.Time = start[9:15]
	}
	if len(segments) > 4 {
		id.ProcessingTime = segments[4]
	}
	return id, nil
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Info returns the fields of the identifier, to be used with FormatBrackets
func (id Identifier) Info() map[string]string {
	return map[string]string{
		"SCENE":              id.Scene,
		"MISSION_ID":         id.Mission,
		"PRODUCT_LEVEL":      id.ProductLevel,
		"DATA_TAKE":          id.DataTake,
		"DATE":               id.Year + id.Month + id.Day,
		"YEAR":               id.Year,
		"MONTH":              id.Month,
		"DAY":                id.Day,
		"TIME":               id.Time,
		"COLLECTION_VERSION": id.CollectionVersion,
		"PRODUCT_VERSION":    id.ProductVersion,
		"PROCESSING_TIME":    id.ProcessingTime,
	}
}

// Info parses the scene name and returns its fields (see Identifier.Info)
func Info(sceneName string) (map[string]string, error) {
	id, err := ParseIdentifier(sceneName)
	if err != nil {
		return nil, err
	}
	return id.Info(), nil
}

/**
 * FormatBrackets replaces in <str> all {keys} of <info> by the corresponding value
 * keys must be one of SCENE, MISSION_ID, PRODUCT_LEVEL, DATA_TAKE, DATE(YEAR/MONTH/DAY), TIME, COLLECTION_VERSION, PRODUCT_VERSION, PROCESSING_TIME
 * or one of the keys of the additional maps (the first map defining a key wins)
 * Replaced values are never substituted again
 */
func FormatBrackets(str string, infos ...map[string]string) string {
	var oldnew []string
	seen := map[string]struct{}{}
	for _, info := range infos {
		keys := make([]string, 0, len(info))
		for k := range info {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			oldnew = append(oldnew, "{"+k+"}", info[k])
		}
	}
	if len(oldnew) == 0 {
		return str
	}
	return strings.NewReplacer(oldnew...).Replace(str)
}
