package gorzdrav

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// AppointmentBaseURL is the public page that deep links point to.
const AppointmentBaseURL = "https://gorzdrav.spb.ru/service-free-schedule#"

// ErrInvalidLink is returned when a link does not carry appointment identifiers.
var ErrInvalidLink = errors.New("invalid appointment link")

// linkFormat is the percent-encoded fragment. The schedule id is repeated in
// the doctor slot.
const linkFormat = `%%5B%%7B%%22district%%22:%%22%s%%22%%7D,%%7B%%22lpu%%22:%%22%d%%22%%7D,%%7B%%22speciality%%22:%%22%s%%22%%7D,%%7B%%22schedule%%22:%%22%s%%22%%7D,%%7B%%22doctor%%22:%%22%s%%22%%7D%%5D`

// GenerateLink builds the appointment page link for a doctor's schedule.
// Identifiers are inserted verbatim.
func GenerateLink(districtID string, lpuID int, specialtyID, scheduleID string) string {
	return AppointmentBaseURL + fmt.Sprintf(linkFormat, districtID, lpuID, specialtyID, scheduleID, scheduleID)
}

// ParseLink extracts the identifiers from an appointment page link. Both the
// percent-encoded and the decoded fragment forms are accepted.
func ParseLink(link string) (*LinkParsingResult, error) {
	_, fragment, ok := strings.Cut(strings.TrimSpace(link), "#")
	if !ok || fragment == "" {
		return nil, fmt.Errorf("%w: no fragment", ErrInvalidLink)
	}

	decoded, err := url.PathUnescape(fragment)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}

	var parts []map[string]string
	if err := json.Unmarshal([]byte(decoded), &parts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}

	fields := make(map[string]string, len(parts))
	for _, p := range parts {
		for k, v := range p {
			fields[k] = v
		}
	}

	var res LinkParsingResult
	var missing []string
	if res.DistrictID = fields["district"]; res.DistrictID == "" {
		missing = append(missing, "district")
	}
	if lpu := fields["lpu"]; lpu == "" {
		missing = append(missing, "lpu")
	} else if res.LPUID, err = strconv.Atoi(lpu); err != nil {
		return nil, fmt.Errorf("%w: lpu %q is not a number", ErrInvalidLink, lpu)
	}
	if res.SpecialtyID = fields["speciality"]; res.SpecialtyID == "" {
		missing = append(missing, "speciality")
	}
	res.DoctorID = fields["doctor"]
	if res.DoctorID == "" {
		res.DoctorID = fields["schedule"]
	}
	if res.DoctorID == "" {
		missing = append(missing, "doctor")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidLink, strings.Join(missing, ", "))
	}

	return &res, nil
}
