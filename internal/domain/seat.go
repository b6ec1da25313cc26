package domain

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// SeatID is the natural identity of a seat. At most one seat record exists per SeatID.
type SeatID struct {
	Section string `json:"section" bson:"section" validate:"required"`
	Row     int    `json:"row" bson:"row" validate:"min=0"`
	Col     int    `json:"col" bson:"col" validate:"min=0"`
}

func (id SeatID) String() string {
	return fmt.Sprintf("%s-%d-%d", id.Section, id.Row, id.Col)
}

func (id SeatID) Validate() error {
	if strings.TrimSpace(id.Section) == "" {
		return Invalid("seat %s: section is required", id)
	}
	if err := validate.Struct(id); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return Invalid("seat %s: %s must satisfy %s=%s", id, strings.ToLower(fe.Field()), fe.Tag(), fe.Param())
		}
		return Invalid("seat %s: %v", id, err)
	}
	return nil
}

type Seat struct {
	SeatID `bson:",inline"`
	Booked bool `json:"booked" bson:"booked"`
}

// Less orders seats by section, then row, then column.
func (id SeatID) Less(other SeatID) bool {
	if id.Section != other.Section {
		return id.Section < other.Section
	}
	if id.Row != other.Row {
		return id.Row < other.Row
	}
	return id.Col < other.Col
}
