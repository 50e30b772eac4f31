package gorzdrav

// Dates are passed through as the upstream formats them (local time without
// zone, e.g. "2026-03-02T08:30:00").

// District is a city district.
type District struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Okato *int64 `json:"okato,omitempty"`
}

// LPU is a medical institution.
type LPU struct {
	ID           int    `json:"id"`
	Description  string `json:"description"`
	District     int    `json:"district"`
	DistrictID   int    `json:"districtId"`
	DistrictName string `json:"districtName"`
	IsActive     bool   `json:"isActive"`
	FullName     string `json:"lpuFullName"`
	ShortName    string `json:"lpuShortName"`
	Type         string `json:"lpuType"`
	OID          string `json:"oid"`
	Address      string `json:"address"`
	Phone        string `json:"phone"`
	Email        string `json:"email"`
}

// Specialty is a medical specialty offered by an LPU.
type Specialty struct {
	ID                   string  `json:"id"`
	FerID                string  `json:"ferId"`
	Name                 string  `json:"name"`
	CountFreeParticipant int     `json:"countFreeParticipant"`
	CountFreeTicket      int     `json:"countFreeTicket"`
	LastDate             *string `json:"lastDate"`
	NearestDate          *string `json:"nearestDate"`
}

// Doctor is a doctor as listed for a specialty.
type Doctor struct {
	ID                   string  `json:"id"`
	Name                 string  `json:"name"`
	AriaNumber           string  `json:"ariaNumber"`
	FreeParticipantCount int     `json:"freeParticipantCount"`
	FreeTicketCount      int     `json:"freeTicketCount"`
	LastDate             *string `json:"lastDate"`
	NearestDate          *string `json:"nearestDate"`
	Comment              *string `json:"comment"`
}

// DoctorDetails is a Doctor together with the identifiers used to find it.
type DoctorDetails struct {
	Doctor
	DistrictID  *string `json:"districtId"`
	LPUID       int     `json:"lpuId"`
	SpecialtyID string  `json:"specialtyId"`
}

// Appointment is a free slot with a doctor.
type Appointment struct {
	ID         string `json:"id"`
	VisitStart string `json:"visitStart"`
	VisitEnd   string `json:"visitEnd"`
	Address    string `json:"address"`
	Number     string `json:"number"`
	Room       string `json:"room"`
}

// Timetable is one day of a doctor's schedule.
type Timetable struct {
	VisitStart    string        `json:"visitStart"`
	VisitEnd      string        `json:"visitEnd"`
	DenyCause     string        `json:"denyCause"`
	RecordableDay bool          `json:"recordableDay"`
	Appointments  []Appointment `json:"appointments"`
}

// LinkParsingResult holds the identifiers extracted from an appointment link.
type LinkParsingResult struct {
	DistrictID  string `json:"districtId"`
	LPUID       int    `json:"lpuId"`
	SpecialtyID string `json:"specialtyId"`
	DoctorID    string `json:"doctorId"`
}
