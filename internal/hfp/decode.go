package hfp

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Schema names carried in the envelope's schema header.
const (
	SchemaHfpData        = "HfpData"
	SchemaPassengerCount = "PassengerCount"
)

var (
	ErrUnknownSchema = errors.New("unknown schema")
	ErrMissingField  = errors.New("missing required field")
)

// Decode parses an envelope body according to its schema tag. This is the
// only place where the input kind is inspected.
func Decode(schema string, data []byte) (Message, error) {
	switch schema {
	case SchemaHfpData:
		var ev VehicleEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", schema, err)
		}
		t := &ev.Topic
		switch {
		case t.UniqueVehicleID == "":
			if t.OperatorID == 0 && t.VehicleNumber == 0 {
				return nil, fmt.Errorf("decode %s: uniqueVehicleId: %w", schema, ErrMissingField)
			}
			t.UniqueVehicleID = UniqueVehicleID(t.OperatorID, t.VehicleNumber)
		case t.OperatorID == 0 && t.VehicleNumber == 0:
			oper, veh, err := ParseUniqueVehicleID(t.UniqueVehicleID)
			if err != nil {
				return nil, fmt.Errorf("decode %s: %w", schema, err)
			}
			t.OperatorID, t.VehicleNumber = oper, veh
		}
		return &ev, nil
	case SchemaPassengerCount:
		var pc PassengerCount
		if err := json.Unmarshal(data, &pc); err != nil {
			return nil, fmt.Errorf("decode %s: %w", schema, err)
		}
		return &pc, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSchema, schema)
	}
}
