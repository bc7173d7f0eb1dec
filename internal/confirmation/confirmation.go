// Package confirmation renders a booked appointment from the four values
// carried in the navigation query. It never calls the clinic API.
package confirmation

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html/template"
	"net/url"
	"strconv"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/wolfman30/clinic-kiosk/internal/slots"
)

// Query keys.
const (
	KeyStartTime = "start_time"
	KeyEndTime   = "end_time"
	KeyDoctorID  = "doctor_id"
	KeySlotType  = "slot_type"
)

// InvalidDate is shown when the start time cannot be read.
const InvalidDate = "Invalid date"

// DefaultQRSize is the QR image edge in pixels.
const DefaultQRSize = 200

// Params are copied out of the booked slot by value; the slot itself may be
// gone from inventory by the time the screen renders.
type Params struct {
	StartTime string
	EndTime   string
	DoctorID  string
	SlotType  string
}

// FromSlot copies a slot's confirmation fields.
func FromSlot(s slots.Slot) Params {
	p := Params{
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
		SlotType:  s.SlotType,
	}
	if s.DoctorID != 0 {
		p.DoctorID = strconv.FormatInt(s.DoctorID, 10)
	}
	return p
}

// FromQuery reads params from a confirmation URL.
func FromQuery(q url.Values) Params {
	return Params{
		StartTime: q.Get(KeyStartTime),
		EndTime:   q.Get(KeyEndTime),
		DoctorID:  q.Get(KeyDoctorID),
		SlotType:  q.Get(KeySlotType),
	}
}

// Query encodes params for navigation. Empty values are omitted.
func (p Params) Query() url.Values {
	q := url.Values{}
	for key, value := range map[string]string{
		KeyStartTime: p.StartTime,
		KeyEndTime:   p.EndTime,
		KeyDoctorID:  p.DoctorID,
		KeySlotType:  p.SlotType,
	} {
		if value != "" {
			q.Set(key, value)
		}
	}
	return q
}

// HumanDate formats the start time as "January 2, 2006".
func HumanDate(start string, loc *time.Location) string {
	t, err := slots.ParseTime(start, loc)
	if err != nil {
		if loc == nil {
			loc = time.UTC
		}
		t, err = time.ParseInLocation("2006-01-02", start, loc)
		if err != nil {
			return InvalidDate
		}
	}
	return t.Format("January 2, 2006")
}

type payload struct {
	StartTime *string `json:"startTime"`
	EndTime   *string `json:"endTime"`
	DoctorID  *string `json:"doctorId"`
	SlotType  *string `json:"slotType"`
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Payload serializes the four fields verbatim for the QR code. Missing
// values encode as null.
func Payload(p Params) (string, error) {
	raw, err := json.Marshal(payload{
		StartTime: nullable(p.StartTime),
		EndTime:   nullable(p.EndTime),
		DoctorID:  nullable(p.DoctorID),
		SlotType:  nullable(p.SlotType),
	})
	if err != nil {
		return "", fmt.Errorf("confirmation: encode payload: %w", err)
	}
	return string(raw), nil
}

// QRCode renders content as a PNG.
func QRCode(content string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultQRSize
	}
	png, err := qrcode.Encode(content, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("confirmation: render qr: %w", err)
	}
	return png, nil
}

// View is the confirmation screen's template data.
type View struct {
	Params
	Date    string
	Payload string
	QRImage template.URL
}

// Build derives everything the screen shows from p.
func Build(p Params, size int, loc *time.Location) (View, error) {
	data, err := Payload(p)
	if err != nil {
		return View{}, err
	}
	png, err := QRCode(data, size)
	if err != nil {
		return View{}, err
	}
	return View{
		Params:  p,
		Date:    HumanDate(p.StartTime, loc),
		Payload: data,
		QRImage: template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(png)),
	}, nil
}
