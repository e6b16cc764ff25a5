package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"hfp-vehicleposition/internal/gtfsrt"
	"hfp-vehicleposition/internal/stops"
)

// TablesFile is the YAML layout of the processor config file.
type TablesFile struct {
	OccuLevels                 []OccuLevel      `yaml:"occuLevels" validate:"dive"`
	OccuLevelsVehicleLoadRatio []LoadRatioLevel `yaml:"occuLevelsVehicleLoadRatio" validate:"dive"`
	FallbackStops              []FallbackStop   `yaml:"fallbackStops" validate:"dive"`
}

type OccuLevel struct {
	Occu   int    `yaml:"occu" validate:"gte=0,lte=100"`
	Status string `yaml:"status" validate:"required,oneof=EMPTY MANY_SEATS_AVAILABLE FEW_SEATS_AVAILABLE STANDING_ROOM_ONLY CRUSHED_STANDING_ROOM_ONLY FULL NOT_ACCEPTING_PASSENGERS"`
}

type LoadRatioLevel struct {
	LoadRatio float64 `yaml:"loadRatio" validate:"gte=0"`
	Status    string  `yaml:"status" validate:"required,oneof=EMPTY MANY_SEATS_AVAILABLE FEW_SEATS_AVAILABLE STANDING_ROOM_ONLY CRUSHED_STANDING_ROOM_ONLY FULL NOT_ACCEPTING_PASSENGERS"`
}

// FallbackStop is a stop whose location is used when a vehicle stopped there
// reports no GPS fix. Without Location the coordinates are looked up.
type FallbackStop struct {
	ID       string    `yaml:"id" validate:"required"`
	Location []float64 `yaml:"location" validate:"omitempty,len=2"`
}

// Tables holds the validated structured configuration.
type Tables struct {
	Percent       gtfsrt.ThresholdTable
	LoadRatio     gtfsrt.ThresholdTable
	FallbackStops []stops.Override
}

// LoadTables reads the YAML file at path. A missing file yields the default
// tables; a malformed one is an error.
func LoadTables(path string) (*Tables, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ParseTables(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	t, err := ParseTables(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// ParseTables validates the YAML document and builds the lookup tables.
func ParseTables(data []byte) (*Tables, error) {
	var f TablesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	v := validator.New()
	if err := v.Struct(f); err != nil {
		return nil, err
	}

	percent := gtfsrt.DefaultPercentThresholds()
	if len(f.OccuLevels) > 0 {
		percent = percent[:0:0]
		for _, l := range f.OccuLevels {
			th, err := threshold(float64(l.Occu), l.Status)
			if err != nil {
				return nil, err
			}
			percent = append(percent, th)
		}
	}
	ratio := gtfsrt.DefaultLoadRatioThresholds()
	if len(f.OccuLevelsVehicleLoadRatio) > 0 {
		ratio = ratio[:0:0]
		for _, l := range f.OccuLevelsVehicleLoadRatio {
			th, err := threshold(l.LoadRatio, l.Status)
			if err != nil {
				return nil, err
			}
			ratio = append(ratio, th)
		}
	}

	t := &Tables{}
	var err error
	if t.Percent, err = gtfsrt.NewThresholdTable(percent); err != nil {
		return nil, fmt.Errorf("occuLevels: %w", err)
	}
	if t.LoadRatio, err = gtfsrt.NewThresholdTable(ratio); err != nil {
		return nil, fmt.Errorf("occuLevelsVehicleLoadRatio: %w", err)
	}
	for _, s := range f.FallbackStops {
		o := stops.Override{ID: s.ID}
		if len(s.Location) == 2 {
			o.Location = &stops.Location{Lat: s.Location[0], Lon: s.Location[1]}
		}
		t.FallbackStops = append(t.FallbackStops, o)
	}
	return t, nil
}

func threshold(breakpoint float64, status string) (gtfsrt.Threshold, error) {
	s, err := gtfsrt.ParseOccupancyStatus(status)
	if err != nil {
		return gtfsrt.Threshold{}, err
	}
	return gtfsrt.Threshold{Breakpoint: breakpoint, Status: s}, nil
}
