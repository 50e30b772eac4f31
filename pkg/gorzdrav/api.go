// Package gorzdrav exposes the Gorzdrav resources (districts, institutions,
// specialties, doctors, timetables and appointments) on top of the request
// coordinator, plus the appointment deep-link format.
package gorzdrav

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/gorzdrav-proxy/pkg/client"
	"github.com/Sternrassler/gorzdrav-proxy/pkg/upstream"
)

// Status tells an available list apart from an explicitly empty one.
type Status string

const (
	// StatusOK means the upstream returned the items.
	StatusOK Status = "ok"

	// StatusEmpty means the upstream reported that nothing is available.
	StatusEmpty Status = "empty"
)

// List is the result of a list endpoint. Items is never nil.
type List[T any] struct {
	Items  []T    `json:"items"`
	Status Status `json:"status"`
}

// Empty reports whether the upstream signalled that nothing is available.
func (l List[T]) Empty() bool {
	return l.Status == StatusEmpty
}

// ErrNotFound is returned by lookups that filter a list and find no match.
var ErrNotFound = errors.New("not found")

// EmptyCodes lists, per endpoint, the upstream error codes that mean "nothing
// available" rather than a failure.
type EmptyCodes struct {
	Specialties  []int
	Doctors      []int
	Appointments []int
}

// Config holds the resource layer configuration.
type Config struct {
	EmptyCodes EmptyCodes
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		EmptyCodes: EmptyCodes{
			Specialties:  []int{39},
			Doctors:      []int{39},
			Appointments: []int{39},
		},
	}
}

// API is the typed Gorzdrav resource client.
type API struct {
	client *client.Client
	config Config
	logger zerolog.Logger
}

// NewAPI creates an API backed by c.
func NewAPI(c *client.Client, cfg Config) *API {
	if c == nil {
		panic("client cannot be nil")
	}
	return &API{
		client: c,
		config: cfg,
		logger: log.With().Str("component", "gorzdrav-api").Logger(),
	}
}

// Client returns the underlying coordinator.
func (a *API) Client() *client.Client {
	return a.client
}

// Districts returns all districts. Cached.
func (a *API) Districts(ctx context.Context) ([]District, error) {
	return client.CachedDo(ctx, a.client, "districts", nil,
		decodeJob[[]District](a, "/shared/districts"))
}

// LPUs returns the medical institutions, optionally filtered by district.
// Cached.
func (a *API) LPUs(ctx context.Context, districtID *string) ([]LPU, error) {
	path := "/shared/lpus"
	if districtID != nil && *districtID != "" {
		path = "/shared/district/" + url.PathEscape(*districtID) + "/lpus"
	} else {
		districtID = nil
	}
	return client.CachedDo(ctx, a.client, "lpus", map[string]any{"district_id": districtID},
		decodeJob[[]LPU](a, path))
}

// LPU returns a single medical institution. Cached.
func (a *API) LPU(ctx context.Context, lpuID int) (*LPU, error) {
	return client.CachedDo(ctx, a.client, "lpu", map[string]any{"lpu_id": lpuID},
		decodeJob[*LPU](a, fmt.Sprintf("/shared/lpu/%d", lpuID)))
}

// Specialties returns the specialties of an institution. Cached.
func (a *API) Specialties(ctx context.Context, lpuID int) (List[Specialty], error) {
	return client.CachedDo(ctx, a.client, "specialties", map[string]any{"lpu_id": lpuID},
		listJob[Specialty](a, fmt.Sprintf("/schedule/lpu/%d/specialties", lpuID), a.config.EmptyCodes.Specialties))
}

// Doctors returns the doctors of a specialty at an institution. Cached.
func (a *API) Doctors(ctx context.Context, lpuID int, specialtyID string) (List[Doctor], error) {
	path := fmt.Sprintf("/schedule/lpu/%d/speciality/%s/doctors", lpuID, url.PathEscape(specialtyID))
	return client.CachedDo(ctx, a.client, "doctors", map[string]any{"lpu_id": lpuID, "specialty_id": specialtyID},
		listJob[Doctor](a, path, a.config.EmptyCodes.Doctors))
}

// Doctor looks a doctor up in the specialty's doctor list. It returns
// ErrNotFound when no doctor matches.
func (a *API) Doctor(ctx context.Context, lpuID int, specialtyID, doctorID string, districtID *string) (*DoctorDetails, error) {
	doctors, err := a.Doctors(ctx, lpuID, specialtyID)
	if err != nil {
		return nil, err
	}
	for _, d := range doctors.Items {
		if d.ID == doctorID {
			return &DoctorDetails{
				Doctor:      d,
				DistrictID:  districtID,
				LPUID:       lpuID,
				SpecialtyID: specialtyID,
			}, nil
		}
	}
	return nil, fmt.Errorf("doctor %s at lpu %d: %w", doctorID, lpuID, ErrNotFound)
}

// Timetables returns a doctor's schedule. Not cached.
func (a *API) Timetables(ctx context.Context, lpuID int, doctorID string) ([]Timetable, error) {
	path := fmt.Sprintf("/schedule/lpu/%d/doctor/%s/timetable", lpuID, url.PathEscape(doctorID))
	return client.Do(ctx, a.client, decodeJob[[]Timetable](a, path))
}

// Appointments returns a doctor's free slots. Never cached: availability
// changes with every booking.
func (a *API) Appointments(ctx context.Context, lpuID int, doctorID string) (List[Appointment], error) {
	path := fmt.Sprintf("/schedule/lpu/%d/doctor/%s/appointments", lpuID, url.PathEscape(doctorID))
	return client.Do(ctx, a.client, listJob[Appointment](a, path, a.config.EmptyCodes.Appointments))
}

// decodeJob fetches path and decodes the envelope result into T.
func decodeJob[T any](a *API, path string) func(ctx context.Context, s upstream.Session) (T, error) {
	fetch := a.client.GetJob(path)
	return func(ctx context.Context, s upstream.Session) (T, error) {
		var v T
		raw, err := fetch(ctx, s)
		if err != nil {
			return v, err
		}
		if err := decodeResult(raw, &v); err != nil {
			return v, &upstream.Error{
				Kind:    upstream.KindValidation,
				Message: "decode result",
				URL:     a.client.URL(path),
				Err:     err,
			}
		}
		return v, nil
	}
}

// listJob is decodeJob for list endpoints: domain errors carrying one of
// emptyCodes become an empty List instead of an error.
func listJob[T any](a *API, path string, emptyCodes []int) func(ctx context.Context, s upstream.Session) (List[T], error) {
	decode := decodeJob[[]T](a, path)
	return func(ctx context.Context, s upstream.Session) (List[T], error) {
		items, err := decode(ctx, s)
		if err != nil {
			if len(emptyCodes) > 0 && upstream.HasCode(err, emptyCodes...) {
				a.logger.Debug().Str("path", path).Msg("Upstream reported nothing available")
				return List[T]{Items: []T{}, Status: StatusEmpty}, nil
			}
			return List[T]{}, err
		}
		if items == nil {
			items = []T{}
		}
		return List[T]{Items: items, Status: StatusOK}, nil
	}
}

func decodeResult(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}
