// Package fleet maintains the registries of vehicle models, vehicles and
// consists, and translates symbolic control requests (vehicle ID, device
// name) into addressed DCC commands for the station.
package fleet

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/trackworks/dcc-pilot/pkg/dcc"
	"github.com/trackworks/dcc-pilot/pkg/logger"
)

// Vehicle types. A locomotive provides traction power; a self-powered
// car (lightrail unit) counts as an engine. A car has a decoder for
// functions only. A dummy has no decoder at all.
const (
	TypeEngine = "engine"
	TypeCar    = "car"
	TypeDummy  = "dummy"
)

// FunctionMax is the most named functions a model can declare
const FunctionMax = 16

// Commander is the subset of station commands the fleet issues
type Commander interface {
	Move(address, speed int) bool
	Stop(address int, emergency bool) bool
	SetFunction(address int, instruction byte) bool
}

// Function maps a human-friendly device name (lights, sound, ...) to a
// DCC function index (1-12, 13 for the headlight).
type Function struct {
	Name  string `json:"name"`
	Index int    `json:"index"`
}

// Model describes one class of vehicle and its onboard functions
type Model struct {
	Name      string     `json:"name"`
	Type      string     `json:"type"`
	Functions []Function `json:"devices,omitempty"`
}

type vehicle struct {
	id      string
	address int
	speed   int
	mask    uint16 // current state of the DCC functions, bit = index-1
	model   *Model
}

// Fleet is the registry of models, vehicles and consists. All methods
// are safe for concurrent use.
type Fleet struct {
	mu       sync.RWMutex
	models   map[string]*Model
	vehicles map[string]*vehicle
	consists map[string]*consist
	station  Commander
	log      *logger.Logger
	revision uint64
}

// New creates an empty fleet driving the given command channel
func New(station Commander, log *logger.Logger) *Fleet {
	return &Fleet{
		models:   make(map[string]*Model),
		vehicles: make(map[string]*vehicle),
		consists: make(map[string]*consist),
		station:  station,
		log:      log,
	}
}

// Revision returns a counter incremented on every registry change,
// for conditional status polls.
func (f *Fleet) Revision() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.revision
}

// bump marks a registry change. Caller holds f.mu.
func (f *Fleet) bump() {
	f.revision++
}

func normalizeType(vtype string) string {
	switch strings.ToLower(vtype) {
	case TypeEngine, "locomotive":
		return TypeEngine
	case TypeCar:
		return TypeCar
	default:
		return TypeDummy
	}
}

// DeclareModel registers a vehicle model, replacing any existing model
// with the same name. Functions beyond the per-model limit are dropped.
func (f *Fleet) DeclareModel(name, vtype string, functions []Function) error {
	if name == "" {
		return fmt.Errorf("model name is required")
	}
	if len(functions) > FunctionMax {
		functions = functions[:FunctionMax]
	}

	model := &Model{
		Name:      name,
		Type:      normalizeType(vtype),
		Functions: append([]Function(nil), functions...),
	}

	f.mu.Lock()
	f.models[name] = model
	f.bump()
	f.mu.Unlock()

	f.log.Event("MODEL", name, "CREATED", "TYPE "+model.Type)
	return nil
}

// AddVehicle registers a vehicle, replacing any existing vehicle with
// the same ID. The DCC address must be unique across the fleet and the
// ID must not collide with a consist name. An unknown model is not an
// error: the vehicle simply has no controllable functions.
func (f *Fleet) AddVehicle(id, modelName string, address int) error {
	if id == "" {
		return fmt.Errorf("vehicle ID is required")
	}
	if !dcc.ValidLocomotiveAddress(address) {
		return fmt.Errorf("invalid vehicle address %d", address)
	}

	f.mu.Lock()
	if _, taken := f.consists[id]; taken {
		f.mu.Unlock()
		return fmt.Errorf("%s already names a consist", id)
	}
	for _, v := range f.vehicles {
		if v.address == address && v.id != id {
			f.mu.Unlock()
			return fmt.Errorf("address %d already assigned to %s", address, v.id)
		}
	}

	f.vehicles[id] = &vehicle{
		id:      id,
		address: address,
		model:   f.models[modelName],
	}
	f.bump()
	f.mu.Unlock()

	f.log.Event("VEHICLE", id, "CREATED", "MODEL "+modelName)
	return nil
}

// Delete removes the named vehicle, or, when no vehicle matches, the
// named model. A deleted vehicle is also removed from its consist.
func (f *Fleet) Delete(id string) bool {
	f.mu.Lock()
	if _, ok := f.vehicles[id]; ok {
		delete(f.vehicles, id)
		f.removeMemberLocked(id)
		f.bump()
		f.mu.Unlock()
		f.log.Event("VEHICLE", id, "DELETED", "")
		return true
	}
	if _, ok := f.models[id]; ok {
		delete(f.models, id)
		f.bump()
		f.mu.Unlock()
		f.log.Event("MODEL", id, "DELETED", "")
		return true
	}
	f.mu.Unlock()
	return false
}

// Exists reports whether a vehicle with that ID is registered
func (f *Fleet) Exists(id string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.vehicles[id]
	return ok
}

// Move commands one vehicle's speed and direction. A positive speed
// moves forward, negative reverse, zero is a normal stop.
func (f *Fleet) Move(id string, speed int) bool {
	f.mu.Lock()
	v, ok := f.vehicles[id]
	if !ok {
		f.mu.Unlock()
		return false
	}
	speed = dcc.ClampSpeed(speed)
	changed := speed != v.speed
	v.speed = speed
	address := v.address
	if changed {
		f.bump()
	}
	f.mu.Unlock()

	if changed {
		f.logMovement(id, speed)
	}
	return f.station.Move(address, speed)
}

func (f *Fleet) logMovement(id string, speed int) {
	switch {
	case speed > 0:
		f.log.Event("VEHICLE", id, "FORWARD", fmt.Sprintf("AT SPEED %d", speed))
	case speed < 0:
		f.log.Event("VEHICLE", id, "REVERSE", fmt.Sprintf("AT SPEED %d", -speed))
	default:
		f.log.Event("VEHICLE", id, "STOP", "")
	}
}

// Stop orders one vehicle to stop, cutting power immediately when
// emergency is set.
func (f *Fleet) Stop(id string, emergency bool) bool {
	f.mu.Lock()
	v, ok := f.vehicles[id]
	if !ok {
		f.mu.Unlock()
		return false
	}
	v.speed = 0
	address := v.address
	f.bump()
	f.mu.Unlock()

	details := "BREAK"
	if emergency {
		details = "EMERGENCY BREAK"
	}
	f.log.Event("VEHICLE", id, "STOP", details)
	return f.station.Stop(address, emergency)
}

// Stopped records that every vehicle was stopped (DCC stop-all). The
// stop command itself has already been broadcast.
func (f *Fleet) Stopped() {
	f.mu.Lock()
	for _, v := range f.vehicles {
		v.speed = 0
	}
	f.bump()
	f.mu.Unlock()
	f.log.Event("VEHICLE", "ALL", "STOPPED", "")
}

// Set switches one named device of a vehicle on or off. The device
// names come from the vehicle's model.
func (f *Fleet) Set(id, name string, state bool) bool {
	f.mu.Lock()
	v, ok := f.vehicles[id]
	if !ok || v.model == nil {
		f.mu.Unlock()
		return false
	}

	index := -1
	for _, fn := range v.model.Functions {
		if fn.Name == name {
			index = fn.Index
			break
		}
	}
	if index <= 0 {
		f.mu.Unlock()
		return false
	}

	bit := uint16(1) << (index - 1)
	if state {
		v.mask |= bit
	} else {
		v.mask &^= bit
	}
	instruction, err := dcc.FunctionInstruction(index, v.mask)
	if err != nil {
		f.mu.Unlock()
		return false
	}
	address := v.address
	f.bump()
	f.mu.Unlock()

	onoff := "OFF"
	if state {
		onoff = "ON"
	}
	f.log.Event("VEHICLE", id, "SET", fmt.Sprintf("%s TO %s", name, onoff))
	return f.station.SetFunction(address, instruction)
}

// VehicleStatus is one vehicle's live state for the status API
type VehicleStatus struct {
	ID      string          `json:"id"`
	Address int             `json:"address"`
	Speed   int             `json:"speed"`
	Model   string          `json:"model,omitempty"`
	Type    string          `json:"type,omitempty"`
	Devices map[string]bool `json:"devices,omitempty"`
}

// Status returns the live state of every vehicle, sorted by ID
func (f *Fleet) Status() []VehicleStatus {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]VehicleStatus, 0, len(f.vehicles))
	for _, v := range f.vehicles {
		status := VehicleStatus{
			ID:      v.id,
			Address: v.address,
			Speed:   v.speed,
		}
		if v.model != nil {
			status.Model = v.model.Name
			status.Type = v.model.Type
			if len(v.model.Functions) > 0 {
				status.Devices = make(map[string]bool, len(v.model.Functions))
				for _, fn := range v.model.Functions {
					status.Devices[fn.Name] = v.mask&(1<<(fn.Index-1)) != 0
				}
			}
		}
		out = append(out, status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// VehicleConfig is one vehicle's persistent configuration
type VehicleConfig struct {
	ID      string `json:"id"`
	Address int    `json:"address"`
	Model   string `json:"model,omitempty"`
}

// Config is the fleet's persistent configuration
type Config struct {
	Models   []Model         `json:"models"`
	Vehicles []VehicleConfig `json:"vehicles"`
	Consists []ConsistConfig `json:"consists"`
}

// ExportConfig snapshots the registries for persistence
func (f *Fleet) ExportConfig() Config {
	f.mu.RLock()
	defer f.mu.RUnlock()

	cfg := Config{
		Models:   make([]Model, 0, len(f.models)),
		Vehicles: make([]VehicleConfig, 0, len(f.vehicles)),
		Consists: make([]ConsistConfig, 0, len(f.consists)),
	}
	for _, m := range f.models {
		cfg.Models = append(cfg.Models, *m)
	}
	for _, v := range f.vehicles {
		item := VehicleConfig{ID: v.id, Address: v.address}
		if v.model != nil {
			item.Model = v.model.Name
		}
		cfg.Vehicles = append(cfg.Vehicles, item)
	}
	for _, c := range f.consists {
		cfg.Consists = append(cfg.Consists, c.exportLocked())
	}
	sort.Slice(cfg.Models, func(i, j int) bool { return cfg.Models[i].Name < cfg.Models[j].Name })
	sort.Slice(cfg.Vehicles, func(i, j int) bool { return cfg.Vehicles[i].ID < cfg.Vehicles[j].ID })
	sort.Slice(cfg.Consists, func(i, j int) bool { return cfg.Consists[i].ID < cfg.Consists[j].ID })
	return cfg
}

// LoadConfig rebuilds the registries from a saved configuration.
// Live state (speeds, function masks) starts over from zero.
func (f *Fleet) LoadConfig(cfg Config) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.models = make(map[string]*Model, len(cfg.Models))
	for i := range cfg.Models {
		m := cfg.Models[i]
		m.Type = normalizeType(m.Type)
		f.models[m.Name] = &m
	}

	f.vehicles = make(map[string]*vehicle, len(cfg.Vehicles))
	for _, item := range cfg.Vehicles {
		if item.ID == "" || !dcc.ValidLocomotiveAddress(item.Address) {
			continue
		}
		f.vehicles[item.ID] = &vehicle{
			id:      item.ID,
			address: item.Address,
			model:   f.models[item.Model],
		}
	}

	f.consists = make(map[string]*consist, len(cfg.Consists))
	for _, item := range cfg.Consists {
		f.loadConsistLocked(item)
	}
	f.bump()
}
