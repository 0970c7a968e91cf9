package inference

import (
	"strings"

	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

// Request is one prediction input. Pointer fields distinguish an absent
// field from a zero value.
type Request struct {
	Age        *float64 `json:"age"`
	Sex        *string  `json:"sex"`
	SystolicBP *float64 `json:"systolicBP"`
	Fbs        *float64 `json:"fbs,omitempty"`

	// Collected by clients but not used by the model.
	DiastolicBP *float64 `json:"diastolicBP,omitempty"`
	HeartRate   *float64 `json:"heartRate,omitempty"`
	BMI         *float64 `json:"bmi,omitempty"`
}

// Request field names.
const (
	FieldAge         = "age"
	FieldSex         = "sex"
	FieldSystolicBP  = "systolicBP"
	FieldFbs         = "fbs"
	FieldDiastolicBP = "diastolicBP"
	FieldHeartRate   = "heartRate"
	FieldBMI         = "bmi"
)

// featureSources maps a model feature to the request field that supplies it.
var featureSources = map[string]string{
	"age":      FieldAge,
	"sex":      FieldSex,
	"trestbps": FieldSystolicBP,
	"fbs":      FieldFbs,
}

// optionalDefaults holds the value used when an optional request field is absent.
var optionalDefaults = map[string]float64{
	FieldFbs: 0,
}

// Validate reports the first missing required field, checked in the order
// age, sex, systolicBP.
func (r *Request) Validate() error {
	switch {
	case r.Age == nil:
		return errors.NewMissingFieldError(FieldAge)
	case r.Sex == nil:
		return errors.NewMissingFieldError(FieldSex)
	case r.SystolicBP == nil:
		return errors.NewMissingFieldError(FieldSystolicBP)
	}
	return nil
}

// IgnoredFields lists the supplied fields the model does not consume.
func (r *Request) IgnoredFields() []string {
	var out []string
	if r.DiastolicBP != nil {
		out = append(out, FieldDiastolicBP)
	}
	if r.HeartRate != nil {
		out = append(out, FieldHeartRate)
	}
	if r.BMI != nil {
		out = append(out, FieldBMI)
	}
	return out
}

// EncodeSex returns 1 for "male" in any letter case and 0 otherwise.
func EncodeSex(s string) float64 {
	if strings.EqualFold(strings.TrimSpace(s), "male") {
		return 1
	}
	return 0
}

// field returns the numeric value of a request field and whether it was supplied.
func (r *Request) field(name string) (float64, bool) {
	var v *float64
	switch name {
	case FieldAge:
		v = r.Age
	case FieldSex:
		if r.Sex == nil {
			return 0, false
		}
		return EncodeSex(*r.Sex), true
	case FieldSystolicBP:
		v = r.SystolicBP
	case FieldFbs:
		v = r.Fbs
	case FieldDiastolicBP:
		v = r.DiastolicBP
	case FieldHeartRate:
		v = r.HeartRate
	case FieldBMI:
		v = r.BMI
	}
	if v == nil {
		return 0, false
	}
	return *v, true
}
