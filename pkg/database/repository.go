package database

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/trackworks/dcc-pilot/pkg/fleet"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FleetRepository persists the fleet registries
type FleetRepository struct {
	db *gorm.DB
}

// NewFleetRepository creates a new fleet repository
func NewFleetRepository(db *gorm.DB) *FleetRepository {
	return &FleetRepository{db: db}
}

// Save replaces the stored fleet configuration with the given snapshot.
// The whole snapshot goes in one transaction: a crash mid-save never
// leaves a half-updated registry.
func (r *FleetRepository) Save(cfg fleet.Config) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&ModelRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("1 = 1").Delete(&VehicleRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("1 = 1").Delete(&ConsistRecord{}).Error; err != nil {
			return err
		}

		for _, model := range cfg.Models {
			devices, err := json.Marshal(model.Functions)
			if err != nil {
				return fmt.Errorf("encode model %s: %w", model.Name, err)
			}
			record := ModelRecord{Name: model.Name, Type: model.Type, Devices: string(devices)}
			if err := tx.Create(&record).Error; err != nil {
				return err
			}
		}
		for _, vehicle := range cfg.Vehicles {
			record := VehicleRecord{VehicleID: vehicle.ID, Address: vehicle.Address, Model: vehicle.Model}
			if err := tx.Create(&record).Error; err != nil {
				return err
			}
		}
		for _, consist := range cfg.Consists {
			members, err := json.Marshal(consist.Members)
			if err != nil {
				return fmt.Errorf("encode consist %s: %w", consist.ID, err)
			}
			record := ConsistRecord{ConsistID: consist.ID, Address: consist.Address, Members: string(members)}
			if err := tx.Create(&record).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Load reads the stored fleet configuration
func (r *FleetRepository) Load() (fleet.Config, error) {
	var cfg fleet.Config

	var models []ModelRecord
	if err := r.db.Order("name").Find(&models).Error; err != nil {
		return cfg, err
	}
	for _, record := range models {
		model := fleet.Model{Name: record.Name, Type: record.Type}
		if record.Devices != "" {
			if err := json.Unmarshal([]byte(record.Devices), &model.Functions); err != nil {
				return cfg, fmt.Errorf("decode model %s: %w", record.Name, err)
			}
		}
		cfg.Models = append(cfg.Models, model)
	}

	var vehicles []VehicleRecord
	if err := r.db.Order("vehicle_id").Find(&vehicles).Error; err != nil {
		return cfg, err
	}
	for _, record := range vehicles {
		cfg.Vehicles = append(cfg.Vehicles, fleet.VehicleConfig{
			ID:      record.VehicleID,
			Address: record.Address,
			Model:   record.Model,
		})
	}

	var consists []ConsistRecord
	if err := r.db.Order("consist_id").Find(&consists).Error; err != nil {
		return cfg, err
	}
	for _, record := range consists {
		consist := fleet.ConsistConfig{ID: record.ConsistID, Address: record.Address}
		if record.Members != "" {
			if err := json.Unmarshal([]byte(record.Members), &consist.Members); err != nil {
				return cfg, fmt.Errorf("decode consist %s: %w", record.ConsistID, err)
			}
		}
		cfg.Consists = append(cfg.Consists, consist)
	}

	return cfg, nil
}

// StationRepository persists the operator-adjustable channel settings
type StationRepository struct {
	db *gorm.DB
}

// NewStationRepository creates a new station settings repository
func NewStationRepository(db *gorm.DB) *StationRepository {
	return &StationRepository{db: db}
}

// SavePins stores the generator output pin assignment
func (r *StationRepository) SavePins(pinA, pinB int) error {
	settings := StationSettings{ID: 1, PinA: pinA, PinB: pinB}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"pin_a", "pin_b", "updated_at"}),
	}).Create(&settings).Error
}

// LoadPins reads the stored pin assignment. Returns found=false when
// nothing was ever saved.
func (r *StationRepository) LoadPins() (pinA, pinB int, found bool, err error) {
	var settings StationSettings
	result := r.db.First(&settings, 1)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return 0, 0, false, nil
		}
		return 0, 0, false, result.Error
	}
	return settings.PinA, settings.PinB, true, nil
}
